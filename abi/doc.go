// Package abi describes the foreign engine's entry points in Go terms.
//
// Foreign objects are addressed by Ptr values (32-bit offsets into the
// engine's memory domain); Ptr 0 is null. Arrays cross the boundary as a
// fixed 16-byte descriptor:
//
//	offset 0   int32   size
//	offset 4   uint32  element type (1 float, 2 int, 3 string, 4 pointer, 5 void)
//	offset 8   uint32  data pointer
//	offset 12  uint8   owner flag
//
// Who frees an array depends on the entry point that produced it, not on
// a global rule. OwnershipFor encodes that table.
package abi
