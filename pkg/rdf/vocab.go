package rdf

// Namespace IRIs.
const (
	NSRDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS    = "http://www.w3.org/2000/01/rdf-schema#"
	NSOWL     = "http://www.w3.org/2002/07/owl#"
	NSXSD     = "http://www.w3.org/2001/XMLSchema#"
	NSSKOS    = "http://www.w3.org/2004/02/skos/core#"
	NSDC      = "http://purl.org/dc/elements/1.1/"
	NSDCTerms = "http://purl.org/dc/terms/"
	NSSchema  = "https://schema.org/"
	NSProv    = "http://www.w3.org/ns/prov#"
	NSTrx     = "https://w3id.org/av360/megt#"
)

const (
	XSDString   = NSXSD + "string"
	XSDInteger  = NSXSD + "integer"
	XSDDateTime = NSXSD + "dateTime"
)

var (
	Type      = IRI(NSRDF + "type")
	Label     = IRI(NSRDFS + "label")
	SameAs    = IRI(NSOWL + "sameAs")
	PrefLabel = IRI(NSSKOS + "prefLabel")

	DCIdentifier      = IRI(NSDC + "identifier")
	DCTermsIdentifier = IRI(NSDCTerms + "identifier")
	DCTermsTitle      = IRI(NSDCTerms + "title")
	DCTermsCreated    = IRI(NSDCTerms + "created")
	DCTermsModified   = IRI(NSDCTerms + "modified")

	SchemaIdentifier = IRI(NSSchema + "identifier")
	SchemaTermCode   = IRI(NSSchema + "termCode")
	SchemaName       = IRI(NSSchema + "name")
	SchemaURL        = IRI(NSSchema + "url")

	ProvAtTime = IRI(NSProv + "atTime")
)

// Transaction vocabulary.
var (
	TrxTransaction = IRI(NSTrx + "Transaction")
	TrxStatus      = IRI(NSTrx + "status")
	TrxReason      = IRI(NSTrx + "reason")
	TrxTenant      = IRI(NSTrx + "tenant")
	TrxInserted    = IRI(NSTrx + "inserted")
	TrxUpdated     = IRI(NSTrx + "updated")
	TrxRemoved     = IRI(NSTrx + "removed")
)

// prefixes used by Expand for compact CLI and config input.
var prefixes = map[string]string{
	"rdf":     NSRDF,
	"rdfs":    NSRDFS,
	"owl":     NSOWL,
	"xsd":     NSXSD,
	"skos":    NSSKOS,
	"dc":      NSDC,
	"dcterms": NSDCTerms,
	"sdo":     NSSchema,
	"schema":  NSSchema,
	"prov":    NSProv,
	"megt":    NSTrx,
}

// Expand turns a compact name such as "rdfs:label" into a full IRI. Names
// with an unknown prefix are returned unchanged.
func Expand(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			if ns, ok := prefixes[name[:i]]; ok {
				return ns + name[i+1:]
			}
			return name
		}
	}
	return name
}
