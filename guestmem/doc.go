// Package guestmem provides bounded, generation-checked access to a guest
// module's linear memory from the host.
//
// A Region is a borrowing view over the memory of one module instance. Every
// call into the guest made through the Region advances its generation,
// because guest code may grow memory or move the data it hands out. A Pointer
// records the generation it was captured at, and any access with a Pointer
// from an older generation fails with ErrStalePointer instead of touching
// memory. The only way to get a usable Pointer after a guest call is to ask
// the guest again with RefreshPointer.
//
// A typical exchange:
//
//	ptr, err := region.RefreshPointer(ctx, "get_buffer_pointer")
//	err = region.WriteString(ptr, "Did you know")
//	res, err := region.Call(ctx, "transform", 12)
//	ptr, err = region.RefreshPointer(ctx, "get_buffer_pointer")
//	s, err := region.ReadUTF8(ptr, uint32(res[0]))
//
// A Region is not safe for concurrent use. Callers sharing one across
// goroutines must serialize access themselves.
package guestmem
