package watermark

import (
	"bytes"
	"slices"
	"unicode/utf8"

	"github.com/dsoprea/go-exif/v3"
	exifundefined "github.com/dsoprea/go-exif/v3/undefined"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
	"github.com/pkg/errors"
)

// MetadataKeyword names the text entry holding the payload in encoded PNG files.
const MetadataKeyword = "DeepfakeWatermark"

var (
	// ErrUnsupportedFormat is returned for encoded images that are neither PNG nor JPEG.
	ErrUnsupportedFormat = errors.New("unsupported image format for text metadata")

	// ErrMetadataNotFound is returned when an encoded image carries no payload text.
	ErrMetadataNotFound = errors.New("no watermark text metadata")
)

const (
	exifIfdPath        = "IFD/Exif"
	userCommentTagName = "UserComment"

	// The EXIF block shares one APP1 segment of at most 64 KiB with the IFD structure.
	maxUserComment = 60 << 10
)

// Format is the container format of an encoded image.
type Format string

const (
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatUnknown Format = ""
)

// DetectFormat identifies an encoded image by its leading magic bytes.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, pngstructure.PngSignature[:]):
		return FormatPNG
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return FormatJPEG
	default:
		return FormatUnknown
	}
}

// AddTextMetadata returns a copy of an encoded PNG or JPEG image carrying text. PNG files get a
// tEXt chunk keyed MetadataKeyword (iTXt when text is not ASCII) before the first IDAT chunk;
// JPEG files get the text as the EXIF UserComment. This is a best-effort sink: the pixel
// watermark does not depend on it.
func AddTextMetadata(data []byte, text string) ([]byte, error) {
	switch DetectFormat(data) {
	case FormatPNG:
		return addPNGText(data, text)
	case FormatJPEG:
		return addJPEGUserComment(data, text)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ReadTextMetadata returns the text stored by AddTextMetadata.
func ReadTextMetadata(data []byte) (string, error) {
	switch DetectFormat(data) {
	case FormatPNG:
		return readPNGText(data)
	case FormatJPEG:
		return readJPEGUserComment(data)
	default:
		return "", ErrUnsupportedFormat
	}
}

func parsePNG(data []byte) (*pngstructure.ChunkSlice, error) {
	mc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse png")
	}
	cs, ok := mc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, errors.Errorf("unexpected png media context %T", mc)
	}
	return cs, nil
}

func addPNGText(data []byte, text string) ([]byte, error) {
	cs, err := parsePNG(data)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	body.WriteString(MetadataKeyword)
	body.WriteByte(0)
	chunkType := "tEXt"
	if !isASCII(text) {
		chunkType = "iTXt"
		// uncompressed, empty language tag and translated keyword
		body.Write([]byte{0, 0, 0, 0})
	}
	body.WriteString(text)

	chunk := &pngstructure.Chunk{
		Type:   chunkType,
		Length: uint32(body.Len()),
		Data:   body.Bytes(),
	}
	chunk.UpdateCrc32()

	// an earlier payload is replaced
	chunks := slices.DeleteFunc(slices.Clone(cs.Chunks()), isPayloadChunk)
	idat := slices.IndexFunc(chunks, func(c *pngstructure.Chunk) bool { return c.Type == "IDAT" })
	if idat < 0 {
		return nil, errors.New("png has no image data chunk")
	}
	chunks = slices.Insert(chunks, idat, chunk)

	var out bytes.Buffer
	out.Grow(len(data) + body.Len() + 12)
	out.Write(pngstructure.PngSignature[:])
	for _, c := range chunks {
		out.Write(c.Bytes())
	}
	return out.Bytes(), nil
}

func readPNGText(data []byte) (string, error) {
	cs, err := parsePNG(data)
	if err != nil {
		return "", err
	}

	for _, c := range cs.Chunks() {
		if text, ok := payloadText(c); ok {
			return text, nil
		}
	}
	return "", ErrMetadataNotFound
}

func isPayloadChunk(c *pngstructure.Chunk) bool {
	_, ok := payloadText(c)
	return ok
}

// payloadText returns the text of a tEXt or uncompressed iTXt chunk keyed MetadataKeyword.
func payloadText(c *pngstructure.Chunk) (string, bool) {
	switch c.Type {
	case "tEXt":
		key, value, ok := bytes.Cut(c.Data, []byte{0})
		if ok && string(key) == MetadataKeyword {
			return latin1ToString(value), true
		}
	case "iTXt":
		return parseITXt(c.Data)
	}
	return "", false
}

func parseITXt(body []byte) (string, bool) {
	key, rest, ok := bytes.Cut(body, []byte{0})
	if !ok || string(key) != MetadataKeyword || len(rest) < 2 || rest[0] != 0 {
		return "", false
	}
	// skip compression method, language tag and translated keyword
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", false
	}
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", false
	}
	return string(rest), true
}

func parseJPEG(data []byte) (*jpegstructure.SegmentList, error) {
	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse jpeg")
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, errors.Errorf("unexpected jpeg media context %T", mc)
	}
	return sl, nil
}

func addJPEGUserComment(data []byte, text string) ([]byte, error) {
	if len(text) > maxUserComment {
		return nil, errors.Errorf("comment of %d bytes exceeds the exif segment size", len(text))
	}

	sl, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build exif")
	}
	exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, exifIfdPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build exif sub-ifd")
	}

	encoding := exifundefined.TagUndefinedType_9286_UserComment_Encoding_ASCII
	if !isASCII(text) {
		encoding = exifundefined.TagUndefinedType_9286_UserComment_Encoding_UNDEFINED
	}
	comment := exifundefined.Tag9286UserComment{
		EncodingType:  encoding,
		EncodingBytes: []byte(text),
	}
	if err := exifIb.SetStandardWithName(userCommentTagName, comment); err != nil {
		return nil, errors.Wrap(err, "failed to set user comment")
	}
	if err := sl.SetExif(rootIb); err != nil {
		return nil, errors.Wrap(err, "failed to update exif segment")
	}

	var out bytes.Buffer
	if err := sl.Write(&out); err != nil {
		return nil, errors.Wrap(err, "failed to write jpeg")
	}
	return out.Bytes(), nil
}

func readJPEGUserComment(data []byte) (string, error) {
	sl, err := parseJPEG(data)
	if err != nil {
		return "", err
	}

	rootIfd, _, err := sl.Exif()
	if err != nil {
		return "", errors.Wrap(ErrMetadataNotFound, err.Error())
	}
	exifIfd, err := exif.FindIfdFromRootIfd(rootIfd, exifIfdPath)
	if err != nil {
		return "", errors.Wrap(ErrMetadataNotFound, err.Error())
	}
	entries, err := exifIfd.FindTagWithName(userCommentTagName)
	if err != nil || len(entries) == 0 {
		return "", ErrMetadataNotFound
	}

	value, err := entries[0].Value()
	if err != nil {
		return "", errors.Wrap(err, "failed to decode user comment")
	}
	switch uc := value.(type) {
	case exifundefined.Tag9286UserComment:
		return string(uc.EncodingBytes), nil
	case *exifundefined.Tag9286UserComment:
		return string(uc.EncodingBytes), nil
	default:
		return "", errors.Errorf("unexpected user comment value %T", value)
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func latin1ToString(b []byte) string {
	if isASCII(string(b)) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
