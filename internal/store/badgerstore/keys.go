package badgerstore

import (
	"encoding/binary"
	"errors"

	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// Index orders the three term positions inside a key.
type index byte

const (
	indexSPO index = 's'
	indexPOS index = 'p'
	indexOSP index = 'o'
)

var errCorruptKey = errors.New("corrupt statement key")

// tenantPrefix is the key prefix shared by every statement of tenant.
func tenantPrefix(tenant string, idx index) []byte {
	b := make([]byte, 0, len(tenant)+3)
	b = binary.AppendUvarint(b, uint64(len(tenant)))
	b = append(b, tenant...)
	return append(b, byte(idx))
}

// appendTerm writes a self-delimiting term so that a key prefix always ends
// on a term boundary.
func appendTerm(b []byte, t rdf.Term) []byte {
	b = append(b, byte(t.Kind))
	for _, s := range []string{t.Value, t.Datatype, t.Lang} {
		b = binary.AppendUvarint(b, uint64(len(s)))
		b = append(b, s...)
	}
	return b
}

func readTerm(b []byte) (rdf.Term, []byte, error) {
	if len(b) == 0 {
		return rdf.Term{}, nil, errCorruptKey
	}
	t := rdf.Term{Kind: rdf.Kind(b[0])}
	b = b[1:]
	var parts [3]string
	for i := range parts {
		n, w := binary.Uvarint(b)
		if w <= 0 || uint64(len(b)-w) < n {
			return rdf.Term{}, nil, errCorruptKey
		}
		parts[i] = string(b[w : w+int(n)])
		b = b[w+int(n):]
	}
	t.Value, t.Datatype, t.Lang = parts[0], parts[1], parts[2]
	return t, b, nil
}

func order(idx index, st rdf.Statement) [3]rdf.Term {
	switch idx {
	case indexPOS:
		return [3]rdf.Term{st.Predicate, st.Object, st.Subject}
	case indexOSP:
		return [3]rdf.Term{st.Object, st.Subject, st.Predicate}
	default:
		return [3]rdf.Term{st.Subject, st.Predicate, st.Object}
	}
}

func encodeKey(tenant string, idx index, st rdf.Statement) []byte {
	b := tenantPrefix(tenant, idx)
	for _, t := range order(idx, st) {
		b = appendTerm(b, t)
	}
	return appendTerm(b, st.Context)
}

// decodeKey parses a key produced by encodeKey; prefix is its tenant prefix.
func decodeKey(prefix []byte, idx index, key []byte) (rdf.Statement, error) {
	rest := key[len(prefix):]
	var terms [4]rdf.Term
	for i := range terms {
		t, r, err := readTerm(rest)
		if err != nil {
			return rdf.Statement{}, err
		}
		terms[i] = t
		rest = r
	}
	if len(rest) != 0 {
		return rdf.Statement{}, errCorruptKey
	}
	st := rdf.Statement{Context: terms[3]}
	switch idx {
	case indexPOS:
		st.Predicate, st.Object, st.Subject = terms[0], terms[1], terms[2]
	case indexOSP:
		st.Object, st.Subject, st.Predicate = terms[0], terms[1], terms[2]
	default:
		st.Subject, st.Predicate, st.Object = terms[0], terms[1], terms[2]
	}
	return st, nil
}

// scanPlan picks the index whose leading positions are bound and returns
// the prefix to iterate.
func scanPlan(tenant string, s, p, o rdf.Term) (index, []byte) {
	switch {
	case !s.IsZero():
		b := appendTerm(tenantPrefix(tenant, indexSPO), s)
		if !p.IsZero() {
			b = appendTerm(b, p)
			if !o.IsZero() {
				b = appendTerm(b, o)
			}
		}
		return indexSPO, b
	case !p.IsZero():
		b := appendTerm(tenantPrefix(tenant, indexPOS), p)
		if !o.IsZero() {
			b = appendTerm(b, o)
		}
		return indexPOS, b
	case !o.IsZero():
		return indexOSP, appendTerm(tenantPrefix(tenant, indexOSP), o)
	default:
		return indexSPO, tenantPrefix(tenant, indexSPO)
	}
}
