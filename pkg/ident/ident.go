// Package ident mints local identifiers.
//
// Reproducible identifiers are a domain-separated sha256 over their inputs,
// so the same inputs always produce the same identifier. Random identifiers
// use the same encoding over a fresh UUID and are indistinguishable in shape.
package ident

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultEntityPrefix      = "urn:pwid:meg:e:"
	DefaultTransactionPrefix = "urn:pwid:meg:t:"

	// BodyLength is the number of encoded characters after the prefix.
	BodyLength = 16

	domainReproducible = "graphmerge/entity/v1"
	domainRandom       = "graphmerge/random/v1"
	domainTransaction  = "graphmerge/transaction/v1"
)

var encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Local entity classes assigned by type coercion.
const (
	ClassIndividual = "Individual"
	ClassClassifier = "Classifier"
	ClassEmbedded   = "Embedded"
)

// Namespace holds the prefixes under which identifiers are minted.
type Namespace struct {
	EntityPrefix      string
	TransactionPrefix string
}

// Default returns the built-in namespace.
func Default() Namespace {
	return Namespace{EntityPrefix: DefaultEntityPrefix, TransactionPrefix: DefaultTransactionPrefix}
}

// Reproducible derives an entity identifier from parts. Parts are length
// prefixed so ("ab", "c") and ("a", "bc") never collide.
func (n Namespace) Reproducible(parts ...string) string {
	return n.EntityPrefix + hashWithDomain(domainReproducible, parts...)
}

// Random mints a fresh entity identifier.
func (n Namespace) Random() string {
	return n.EntityPrefix + hashWithDomain(domainRandom, uuid.NewString())
}

// Transaction mints a fresh transaction identifier.
func (n Namespace) Transaction() string {
	return n.TransactionPrefix + hashWithDomain(domainTransaction, uuid.NewString())
}

// IsLocal reports whether iri lies in the entity namespace.
func (n Namespace) IsLocal(iri string) bool {
	return strings.HasPrefix(iri, n.EntityPrefix)
}

// Class returns the IRI of a local entity class.
func (n Namespace) Class(name string) string {
	return n.EntityPrefix + name
}

// Classes returns the IRIs of every local entity class.
func (n Namespace) Classes() []string {
	return []string{n.Class(ClassIndividual), n.Class(ClassClassifier), n.Class(ClassEmbedded)}
}

// IsTransaction reports whether iri lies in the transaction namespace.
func (n Namespace) IsTransaction(iri string) bool {
	return strings.HasPrefix(iri, n.TransactionPrefix)
}

// IsMinted reports whether iri has the shape of an identifier minted by this
// namespace.
func (n Namespace) IsMinted(iri string) bool {
	if !n.IsLocal(iri) {
		return false
	}
	body := iri[len(n.EntityPrefix):]
	if len(body) != BodyLength {
		return false
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if !(c >= 'a' && c <= 'z') && !(c >= '2' && c <= '7') {
			return false
		}
	}
	return true
}

func hashWithDomain(domain string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write([]byte(p))
	}
	return encoding.EncodeToString(h.Sum(nil))[:BodyLength]
}
