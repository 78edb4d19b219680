package rdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	krdf "github.com/knakk/rdf"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("n-quads syntax error")

const rdfLangString = NSRDF + "langString"

// ParseNQuads reads N-Triples or N-Quads from r. Blank lines and '#' comments
// are ignored.
func ParseNQuads(r io.Reader) ([]Statement, error) {
	var out []Statement
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		st, err := ParseStatement(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, st)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseStatement parses a single N-Quads line.
func ParseStatement(line string) (Statement, error) {
	dec := krdf.NewQuadDecoder(strings.NewReader(line), krdf.NQuads)
	q, err := dec.Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Statement{}, fmt.Errorf("%w: incomplete statement", ErrSyntax)
		}
		return Statement{}, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
		return Statement{}, fmt.Errorf("%w: trailing input after '.'", ErrSyntax)
	}

	st := Statement{
		Subject:   fromKnakk(q.Subj),
		Predicate: fromKnakk(q.Pred),
		Object:    fromKnakk(q.Obj),
		Context:   fromKnakk(q.Ctx),
	}
	if st.Context.Value == "" {
		st.Context = Term{}
	}
	for _, t := range []Term{st.Subject, st.Predicate, st.Object, st.Context} {
		if t.IsIRI() && !validIRI(t.Value) {
			return Statement{}, fmt.Errorf("%w: invalid IRI %q", ErrSyntax, t.Value)
		}
	}
	if !st.Valid() {
		return Statement{}, fmt.Errorf("%w: invalid term position in %q", ErrSyntax, line)
	}
	return st, nil
}

// WriteNQuads writes one statement per line.
func WriteNQuads(w io.Writer, stmts []Statement) error {
	bw := bufio.NewWriter(w)
	for _, st := range stmts {
		line, err := serialize(st)
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func serialize(st Statement) (string, error) {
	terms := []Term{st.Subject, st.Predicate, st.Object}
	if !st.Context.IsZero() {
		terms = append(terms, st.Context)
	}
	var b strings.Builder
	for _, t := range terms {
		k, err := toKnakk(t)
		if err != nil {
			return "", fmt.Errorf("serialize %s: %w", t, err)
		}
		b.WriteString(k.Serialize(krdf.NQuads))
		b.WriteByte(' ')
	}
	b.WriteString(".\n")
	return b.String(), nil
}

func fromKnakk(t krdf.Term) Term {
	switch v := t.(type) {
	case krdf.IRI:
		return IRI(v.String())
	case krdf.Blank:
		return Blank(strings.TrimPrefix(v.String(), "_:"))
	case krdf.Literal:
		switch dt := v.DataType.String(); {
		case v.Lang() != "":
			return LangLiteral(v.String(), v.Lang())
		case dt == "" || dt == XSDString || dt == rdfLangString:
			return Literal(v.String())
		default:
			return TypedLiteral(v.String(), dt)
		}
	default:
		return Term{}
	}
}

func toKnakk(t Term) (krdf.Term, error) {
	switch t.Kind {
	case KindIRI:
		return krdf.NewIRI(t.Value)
	case KindBlank:
		return krdf.NewBlank(t.Value)
	case KindLiteral:
		switch {
		case t.Lang != "":
			return krdf.NewLangLiteral(t.Value, t.Lang)
		case t.Datatype != "":
			dt, err := krdf.NewIRI(t.Datatype)
			if err != nil {
				return nil, err
			}
			return krdf.NewTypedLiteral(t.Value, dt), nil
		default:
			return krdf.NewLiteral(t.Value)
		}
	default:
		return nil, fmt.Errorf("%w: empty term", ErrSyntax)
	}
}

func validIRI(v string) bool {
	return v != "" && !strings.ContainsAny(v, " <>\"{}|^`\\")
}
