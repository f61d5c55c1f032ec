// Package dbc reads, represents, and writes CAN bus database files in the
// textual DBC format used by Vector CANdb++ and compatible automotive
// tooling.
//
// A Database is built in two passes: a streaming pass classifies and parses
// each line into staging buffers (Parser), then a resolver pass attaches
// comments, attribute definitions and value tables to the entities they
// reference by name or numeric id. The result is a fully linked, read-only
// Database: nodes, messages, the signals packed into each message, and a
// schema of attribute definitions.
//
// Transcoder decodes and encodes a message's raw CAN payload against the
// signal layout recorded in the Database.
package dbc
