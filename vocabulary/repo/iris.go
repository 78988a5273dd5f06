package repo

// Namespace is the base IRI of the repository ontology.
const Namespace = "https://w3id.org/semgate/ontology/"

// EntityNamespace is the base IRI of repository-internal resource nodes.
const EntityNamespace = "https://w3id.org/semgate/resource/"

// Well-known external vocabulary IRIs.
const (
	RDFType   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFSLabel = "http://www.w3.org/2000/01/rdf-schema#label"

	SKOSPrefLabel = "http://www.w3.org/2004/02/skos/core#prefLabel"

	DCTitle      = "http://purl.org/dc/elements/1.1/title"
	DCTermsTitle = "http://purl.org/dc/terms/title"

	FOAFName       = "http://xmlns.com/foaf/0.1/name"
	FOAFGivenName  = "http://xmlns.com/foaf/0.1/givenName"
	FOAFFamilyName = "http://xmlns.com/foaf/0.1/familyName"

	SchemaName       = "http://schema.org/name"
	SchemaGivenName  = "http://schema.org/givenName"
	SchemaFamilyName = "http://schema.org/familyName"

	WGS84Lat  = "http://www.w3.org/2003/01/geo/wgs84_pos#lat"
	WGS84Long = "http://www.w3.org/2003/01/geo/wgs84_pos#long"
	GeoWKT    = "http://www.opengis.net/ont/geosparql#asWKT"
	WKTType   = "http://www.opengis.net/ont/geosparql#wktLiteral"
)

// Class IRIs.
const (
	// ClassAnything is the root class; its properties are allowed everywhere.
	ClassAnything = Namespace + "Anything"

	// ClassCollection aggregates descendant resources.
	ClassCollection = Namespace + "Collection"

	// ClassTopCollection is a collection without a parent.
	ClassTopCollection = Namespace + "TopCollection"

	// ClassBinary is a resource carrying a binary payload.
	ClassBinary = Namespace + "Binary"

	// ClassPublication is always public and always receives a PID.
	ClassPublication = Namespace + "Publication"

	// ClassDataset may be public depending on its read ACL.
	ClassDataset = Namespace + "Dataset"
)

// Property IRIs maintained or inspected by the gatekeeper.
const (
	PropID                   = Namespace + "id"
	PropTitle                = DCTermsTitle
	PropParent               = Namespace + "parent"
	PropBinarySize           = Namespace + "binarySize"
	PropCumulativeSize       = Namespace + "cumulativeSize"
	PropCumulativeCount      = Namespace + "cumulativeCount"
	PropLicense              = Namespace + "license"
	PropLicenseAgg           = Namespace + "licenseAggregate"
	PropAccessRestriction    = Namespace + "accessRestriction"
	PropAccessRestrictionAgg = Namespace + "accessRestrictionAggregate"
	PropPID                  = Namespace + "pid"
	PropDependentPID         = Namespace + "dependentPid"
	PropMemberOf             = Namespace + "memberOf"
	PropACLRead              = Namespace + "aclRead"
	PropIsNewVersionOf       = Namespace + "isNewVersionOf"
	PropHasNextItem          = Namespace + "hasNextItem"
	PropBibliographicRecord  = Namespace + "bibliographicRecord"
	PropLatitude             = WGS84Lat
	PropLongitude            = WGS84Long
	PropWKT                  = GeoWKT
)

// Role IRIs used in read ACLs.
const (
	RolePublic   = Namespace + "role/public"
	RoleAcademic = Namespace + "role/academic"
	RoleMember   = Namespace + "role/member"
)

// PIDCreateSentinel marks a PID literal requesting a new registration.
const PIDCreateSentinel = "create"
