// Copyright the xil authors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xil

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/xi-lang/xil/log"
)

// CurrentMajorVersion/CurrentMinorVersion are the (major, minor) pair this
// implementation writes and expects (§4.1).
const (
	CurrentMajorVersion uint16 = 0
	CurrentMinorVersion uint16 = 1
)

// Options configures Open/Decode the way the corpus's own File.Options
// configures parsing.
type Options struct {
	// Logger receives warnings (e.g. a version mismatch) encountered
	// while decoding. Defaults to a filtered stdout logger at
	// log.LevelError if nil.
	Logger log.Logger
}

func (o *Options) helper() *log.Helper {
	if o == nil || o.Logger == nil {
		return log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelError)))
	}
	return log.NewHelper(o.Logger)
}

// Image is the complete in-memory model of one module file: its header,
// every table, every heap, the code bodies, and an optional trailing
// signature block (§3.7).
type Image struct {
	Minor, Major uint16

	Module         ModuleRow
	ModRefs        []ModuleRefRow
	TypeDefs       []TypeDefRow
	TypeRefs       []TypeRefRow
	TypeSpecs      []TypeSpecRow
	Fields         []FieldRow
	Methods        []MethodRow
	MemberRefs     []MemberRefRow
	ImplMaps       []ImplMapRow
	Params         []ParamRow
	StandaloneSigs []StandaloneSigRow

	StrHeap    []string
	UsrStrHeap []string
	BlobHeap   [][]byte

	Code []CodeRow

	// Signature is an optional detached PKCS#7 SignedData block computed
	// over EncodeUnsigned's output: the image encoded with a zero-length
	// signature block (§3.7). Nil/empty means unsigned.
	Signature []byte

	data   mmap.MMap
	f      *os.File
	logger *log.Helper
}

// OpenImage memory-maps name and decodes it as an Image.
func OpenImage(name string, opts *Options) (*Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	img, err := DecodeImage(data, opts)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	img.data = data
	img.f = f
	return img, nil
}

// Close releases the memory mapping backing an Image opened with
// OpenImage. A no-op for images decoded from an in-memory buffer.
func (img *Image) Close() error {
	if img.data != nil {
		_ = img.data.Unmap()
	}
	if img.f != nil {
		return img.f.Close()
	}
	return nil
}

// DecodeImage parses buf as a complete image file (§6.1).
func DecodeImage(buf []byte, opts *Options) (*Image, error) {
	img := &Image{logger: opts.helper()}
	r := newReader(buf)

	var err error
	if img.Minor, err = r.u16(); err != nil {
		return nil, NewFormatError("header.minor", err)
	}
	if img.Major, err = r.u16(); err != nil {
		return nil, NewFormatError("header.major", err)
	}
	if img.Major != CurrentMajorVersion || img.Minor != CurrentMinorVersion {
		img.logger.Warnf("image version %d.%d does not match expected %d.%d",
			img.Major, img.Minor, CurrentMajorVersion, CurrentMinorVersion)
	}

	modRows, err := decodeVec(r, "module", decodeModuleRow)
	if err != nil {
		return nil, err
	}
	if len(modRows) != 1 {
		return nil, NewFormatError("module", ErrBadSignature)
	}
	img.Module = modRows[0]

	if img.ModRefs, err = decodeVec(r, "modref", decodeModuleRefRow); err != nil {
		return nil, err
	}
	if img.TypeDefs, err = decodeVec(r, "typedef", decodeTypeDefRow); err != nil {
		return nil, err
	}
	if img.TypeRefs, err = decodeVec(r, "typeref", decodeTypeRefRow); err != nil {
		return nil, err
	}
	if img.TypeSpecs, err = decodeVec(r, "typespec", decodeTypeSpecRow); err != nil {
		return nil, err
	}
	if img.Fields, err = decodeVec(r, "field", decodeFieldRow); err != nil {
		return nil, err
	}
	if img.Methods, err = decodeVec(r, "method", decodeMethodRow); err != nil {
		return nil, err
	}
	if img.MemberRefs, err = decodeVec(r, "memberref", decodeMemberRefRow); err != nil {
		return nil, err
	}
	if img.ImplMaps, err = decodeVec(r, "implmap", decodeImplMapRow); err != nil {
		return nil, err
	}
	if img.Params, err = decodeVec(r, "param", decodeParamRow); err != nil {
		return nil, err
	}
	if img.StandaloneSigs, err = decodeVec(r, "standalone_sig", decodeStandaloneSigRow); err != nil {
		return nil, err
	}

	if err := checkRanges(img.TypeDefs, len(img.Fields), len(img.Methods)); err != nil {
		return nil, NewFormatError("typedef ranges", err)
	}

	if img.StrHeap, err = decodeStrVec(r, "str_heap"); err != nil {
		return nil, err
	}
	if img.UsrStrHeap, err = decodeStrVec(r, "usr_str_heap"); err != nil {
		return nil, err
	}
	if img.BlobHeap, err = decodeBlobVec(r, "blob_heap"); err != nil {
		return nil, err
	}

	if img.Code, err = decodeVec(r, "code", decodeCodeRow); err != nil {
		return nil, err
	}

	// §3.7: trailing optional signature, framed by a u32 length prefix
	// (0 = absent). Its own absence at end-of-buffer (r.remaining()==0)
	// is equivalent to an explicit 0.
	if r.remaining() > 0 {
		sigLen, err := r.u32()
		if err != nil {
			return nil, NewFormatError("signature", err)
		}
		if sigLen > 0 {
			sig, err := r.bytes(int(sigLen))
			if err != nil {
				return nil, NewFormatError("signature", err)
			}
			img.Signature = append([]byte(nil), sig...)
		}
	}

	return img, nil
}

// Encode serializes the image back to its wire format (§6.1), including
// the trailing signature framing, for round-tripping (§8 invariant 1).
func (img *Image) Encode() []byte {
	w := newWriter()
	w.u16(img.Minor)
	w.u16(img.Major)

	encodeVec(w, []ModuleRow{img.Module})
	encodeVec(w, img.ModRefs)
	encodeVec(w, img.TypeDefs)
	encodeVec(w, img.TypeRefs)
	encodeVec(w, img.TypeSpecs)
	encodeVec(w, img.Fields)
	encodeVec(w, img.Methods)
	encodeVec(w, img.MemberRefs)
	encodeVec(w, img.ImplMaps)
	encodeVec(w, img.Params)
	encodeVec(w, img.StandaloneSigs)

	encodeStrVec(w, img.StrHeap)
	encodeStrVec(w, img.UsrStrHeap)
	encodeBlobVec(w, img.BlobHeap)

	encodeVec(w, img.Code)

	w.u32(uint32(len(img.Signature)))
	if len(img.Signature) > 0 {
		w.rawBytes(img.Signature)
	}

	return w.bytesOut()
}

// checkRanges enforces the §3.1 invariant that TypeDef field/method
// ranges are monotonically non-decreasing and that each 1-based first
// index is at most table length + 1 (the position just past the last
// row, written for a type that owns no further rows).
func checkRanges(typeDefs []TypeDefRow, numFields, numMethods int) error {
	var lastF, lastM uint32
	for _, t := range typeDefs {
		if t.Fields < lastF || t.Methods < lastM {
			return ErrTableOrder
		}
		if int(t.Fields) > numFields+1 || int(t.Methods) > numMethods+1 {
			return ErrTableOrder
		}
		lastF, lastM = t.Fields, t.Methods
	}
	return nil
}

type encodable interface {
	encode(w *writer)
}

func decodeVec[T any](r *reader, where string, decodeOne func(*reader) (T, error)) ([]T, error) {
	n, err := r.vecCount()
	if err != nil {
		return nil, NewFormatError(where, err)
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := decodeOne(r)
		if err != nil {
			return nil, NewFormatError(where, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func encodeVec[T encodable](w *writer, rows []T) {
	w.vecCount(len(rows))
	for _, row := range rows {
		row.encode(w)
	}
}

func decodeStrVec(r *reader, where string) ([]string, error) {
	n, err := r.vecCount()
	if err != nil {
		return nil, NewFormatError(where, err)
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, NewFormatError(where, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func encodeStrVec(w *writer, ss []string) {
	w.vecCount(len(ss))
	for _, s := range ss {
		w.str(s)
	}
}

func decodeBlobVec(r *reader, where string) ([][]byte, error) {
	n, err := r.vecCount()
	if err != nil {
		return nil, NewFormatError(where, err)
	}
	out := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		b, err := r.blob()
		if err != nil {
			return nil, NewFormatError(where, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func encodeBlobVec(w *writer, bs [][]byte) {
	w.vecCount(len(bs))
	for _, b := range bs {
		w.blob(b)
	}
}
