// Command libcdal builds the C shared library:
//
//	go build -buildmode=c-shared -o libcdal.so ./cmd/libcdal
//
// The public declarations live in include/cdal.h. Handles are malloc'ed cells
// holding a runtime/cgo.Handle, so no Go pointer is ever retained by C.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/justapithecus/cdal/internal/capi"
)

func main() {}

// -----------------------------------------------------------------------------
// Handles
// -----------------------------------------------------------------------------

func newHandle(v any) unsafe.Pointer {
	cell := (*C.uintptr_t)(C.malloc(C.size_t(unsafe.Sizeof(C.uintptr_t(0)))))
	*cell = C.uintptr_t(cgo.NewHandle(v))
	return unsafe.Pointer(cell)
}

func lookup(p unsafe.Pointer) any {
	if p == nil {
		return nil
	}
	return cgo.Handle(*(*C.uintptr_t)(p)).Value()
}

func release(p unsafe.Pointer) {
	cgo.Handle(*(*C.uintptr_t)(p)).Delete()
	C.free(p)
}

func writerAt(p unsafe.Pointer) *capi.Writer {
	w, _ := lookup(p).(*capi.Writer)
	return w
}

func readerAt(p unsafe.Pointer) *capi.Reader {
	r, _ := lookup(p).(*capi.Reader)
	return r
}

// -----------------------------------------------------------------------------
// Entry points
// -----------------------------------------------------------------------------

func writerOpen(path *byte) unsafe.Pointer {
	w := capi.OpenWriter(path)
	if w == nil {
		return nil
	}
	return newHandle(w)
}

func readerOpen(path *byte) unsafe.Pointer {
	r := capi.OpenReader(path)
	if r == nil {
		return nil
	}
	return newHandle(r)
}

func writerFree(handle unsafe.Pointer) {
	capi.FreeWriter(writerAt(handle))
	release(handle)
}

func readerFree(handle unsafe.Pointer) {
	capi.FreeReader(readerAt(handle))
	release(handle)
}

func writerWrite(handle, data unsafe.Pointer, n uintptr) int {
	return capi.WriterWrite(writerAt(handle), data, n)
}

func readerRead(handle, data unsafe.Pointer, n uintptr) int {
	return capi.ReaderRead(readerAt(handle), data, n)
}

// -----------------------------------------------------------------------------
// Exports
// -----------------------------------------------------------------------------

//export cdal_writer_open
func cdal_writer_open(path *C.char) unsafe.Pointer {
	return writerOpen((*byte)(unsafe.Pointer(path)))
}

//export cdal_reader_open
func cdal_reader_open(path *C.char) unsafe.Pointer {
	return readerOpen((*byte)(unsafe.Pointer(path)))
}

//export cdal_writer_free
func cdal_writer_free(handle unsafe.Pointer) { writerFree(handle) }

//export cdal_reader_free
func cdal_reader_free(handle unsafe.Pointer) { readerFree(handle) }

//export cdal_writer_write
func cdal_writer_write(handle unsafe.Pointer, data *C.uint8_t, n C.size_t) C.intptr_t {
	return C.intptr_t(writerWrite(handle, unsafe.Pointer(data), uintptr(n)))
}

//export cdal_reader_read
func cdal_reader_read(handle unsafe.Pointer, data *C.uint8_t, n C.size_t) C.intptr_t {
	return C.intptr_t(readerRead(handle, unsafe.Pointer(data), uintptr(n)))
}
