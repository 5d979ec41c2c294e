// Package corpus decodes labelled digit archives in the IDX format.
//
// An image archive starts with the big-endian header
//
//	magic (0x00000803) | count | rows | cols
//
// followed by count*rows*cols unsigned pixel bytes in row-major order. A label
// archive starts with magic 0x00000801 and count, followed by one byte per label.
// Both may be gzip compressed on disk; the file helpers detect this from the
// stream itself.
//
// Decoding is strict: a wrong magic number, a short header, a payload whose
// length differs from the declared size, or a label above 9 is reported as
// ErrFormat.
package corpus
