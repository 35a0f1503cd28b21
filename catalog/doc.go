// Package catalog is the shared bibliographic catalog: editions and authors that every
// library's copies point at.
//
// Reads are public and may be served from a replica. Writes need the global manage_catalog
// capability, which the enrichment service holds as access.SystemUserID. ISBNs are stored in
// their normalized ISBN-13 form; an ISBN-10 is kept alongside when the ISBN-13 has the 978
// prefix.
package catalog
