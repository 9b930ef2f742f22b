// Package schema validates records against a bucket's field specs and
// prepares them for insertion or update: generated fields (uuid, cuid,
// autoincrement, timestamp) fill absent values, defaults apply next, then
// system metadata is stamped and every constraint checked. All violations
// are collected into one ValidationError rather than failing on the
// first. Fields present in the input but absent from the schema pass
// through untouched.
package schema
