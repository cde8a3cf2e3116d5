// Package config provides configuration structures and utilities for Threadcap.
// It defines the options for capturing and updating reply trees, the
// per-host settings read from the .threadcap file, and report preferences.
package config
