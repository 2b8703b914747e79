package table

// ImageRef is a reference to one image: a path before embedding, a basename
// plus the file's contents after. Refs and payloads stay aligned per cell.
type ImageRef struct {
	Ref  string
	Data []byte
}

// Value is a tagged cell value. Construct with the typed constructors or
// Null, never directly.
type Value struct {
	kind Kind
	null bool
	str  string
	f32  float32
	strs []string
	imgs []ImageRef
}

// StringValue returns a string cell.
func StringValue(s string) Value {
	return Value{kind: String, str: s}
}

// FloatValue returns a float cell.
func FloatValue(f float32) Value {
	return Value{kind: Float, f32: f}
}

// ImageValue returns an image cell referencing a file path.
func ImageValue(path string) Value {
	return Value{kind: Image, imgs: []ImageRef{{Ref: path}}}
}

// StringListValue returns a list-of-strings cell. An empty list is a valid
// non-null value.
func StringListValue(ss []string) Value {
	return Value{kind: StringList, strs: ss}
}

// ImageListValue returns a list-of-images cell referencing file paths.
func ImageListValue(paths []string) Value {
	imgs := make([]ImageRef, len(paths))
	for i, p := range paths {
		imgs[i].Ref = p
	}
	return Value{kind: ImageList, imgs: imgs}
}

// ImageRefsValue returns an image cell from prebuilt refs, possibly with
// embedded payloads. k must be Image or ImageList.
func ImageRefsValue(k Kind, imgs []ImageRef) Value {
	return Value{kind: k, imgs: imgs}
}

// Null returns the null value of the given kind.
func Null(k Kind) Value {
	return Value{kind: k, null: true}
}

// Kind returns the cell's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool { return v.null }

// Str returns the string payload. Valid for String cells.
func (v Value) Str() string { return v.str }

// Float32 returns the float payload. Valid for Float cells.
func (v Value) Float32() float32 { return v.f32 }

// Strings returns the list payload. Valid for StringList cells.
func (v Value) Strings() []string { return v.strs }

// Images returns the image refs. Valid for Image and ImageList cells; an
// Image cell yields exactly one ref.
func (v Value) Images() []ImageRef { return v.imgs }

// NumItems returns the list length for list-kinded cells, 0 for null cells
// and 1 for non-null scalar cells.
func (v Value) NumItems() int {
	if v.null {
		return 0
	}
	switch v.kind {
	case StringList:
		return len(v.strs)
	case ImageList:
		return len(v.imgs)
	default:
		return 1
	}
}

func (v Value) clone() Value {
	c := v
	if v.strs != nil {
		c.strs = append([]string(nil), v.strs...)
	}
	if v.imgs != nil {
		c.imgs = make([]ImageRef, len(v.imgs))
		for i, img := range v.imgs {
			c.imgs[i] = ImageRef{Ref: img.Ref, Data: append([]byte(nil), img.Data...)}
			if img.Data == nil {
				c.imgs[i].Data = nil
			}
		}
	}
	return c
}
