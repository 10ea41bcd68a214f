// Package artifacts handles changelog files once a collection has written them: it logs them, signs them with an
// OpenPGP key and archives them in S3 compatible object storage.
package artifacts
