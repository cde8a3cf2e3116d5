package tor

import (
	"encoding/base32"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionV3Version is the version byte for v3 onion addresses.
	OnionV3Version = 0x03

	// OnionSuffix is the common suffix for all onion addresses.
	OnionSuffix = ".onion"
)

// onionV3Pattern matches v3 onion hosts (56 base32 characters + .onion).
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// onionV2Pattern matches the retired 16-character v2 form.
var onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)

// checksumPrefix is the constant prefix of the v3 checksum input.
var checksumPrefix = []byte(".onion checksum")

// IsValidV3Address checks the format and checksum of a v3 onion host.
//
// Design decision: We verify the checksum rather than just the pattern so
// that a typo in a root URL fails before any request is made, instead of
// as a slow circuit timeout.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	// 32 bytes ed25519 public key, 2 bytes checksum, 1 byte version.
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != OnionV3Version {
		return false
	}
	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// computeV3Checksum is the first 2 bytes of SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}

// ComputeV3AddressFromPublicKey computes the v3 onion host for an ed25519 public key.
func ComputeV3AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}

	data := make([]byte, 35)
	copy(data[:32], pubkey)
	copy(data[32:34], computeV3Checksum(pubkey, OnionV3Version))
	data[34] = OnionV3Version

	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix, nil
}

// IsOnionURL reports whether rawURL points at an onion service.
func IsOnionURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), OnionSuffix)
}

// ValidateRootURL checks the host of an onion root URL.
// Clearnet URLs are accepted unchanged.
func ValidateRootURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOnionAddress, rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, OnionSuffix) {
		return nil
	}

	// Subdomains of an onion service are allowed; only the last label counts.
	labels := strings.Split(host, ".")
	service := labels[len(labels)-2] + OnionSuffix

	if onionV2Pattern.MatchString(service) {
		return fmt.Errorf("%w: %s", ErrV2AddressDeprecated, service)
	}
	if !IsValidV3Address(service) {
		return fmt.Errorf("%w: %s", ErrInvalidOnionAddress, service)
	}
	return nil
}

// RequiresTor reports whether any of the URLs is an onion service.
func RequiresTor(urls ...string) bool {
	for _, u := range urls {
		if IsOnionURL(u) {
			return true
		}
	}
	return false
}
