// Package imageio converts between image files and qsp rasters.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoding
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/utils"
)

// Extensions lists the file extensions ListImages accepts.
var Extensions = []string{".png", ".jpg", ".jpeg"}

// Decode reads a PNG or JPEG image as an RGB raster. Alpha is dropped and
// grayscale is expanded to three channels.
func Decode(r io.Reader) (*qsp.Raster, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", qsp.ErrIO, err)
	}
	return FromImage(img)
}

// FromImage converts any image.Image to an RGB raster.
func FromImage(img image.Image) (*qsp.Raster, error) {
	b := img.Bounds()
	if _, err := utils.SafeMultiply3(b.Dx(), b.Dy(), 3); err != nil {
		return nil, err
	}
	if b.Dx()*b.Dy()*3 > utils.MaxRasterSamples {
		return nil, fmt.Errorf("%w: image %dx%d too large", utils.ErrExceedsLimit, b.Dx(), b.Dy())
	}
	out := qsp.NewRaster(qsp.Shape{H: b.Dy(), W: b.Dx(), C: 3})
	if err := out.Shape.Validate(); err != nil {
		return nil, err
	}

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < out.H; y++ {
			for x := 0; x < out.W; x++ {
				s := src.PixOffset(b.Min.X+x, b.Min.Y+y)
				copy(out.Pix[out.Offset(y, x, 0):out.Offset(y, x, 0)+3], src.Pix[s:s+3])
			}
		}
	case *image.NRGBA:
		for y := 0; y < out.H; y++ {
			for x := 0; x < out.W; x++ {
				s := src.PixOffset(b.Min.X+x, b.Min.Y+y)
				copy(out.Pix[out.Offset(y, x, 0):out.Offset(y, x, 0)+3], src.Pix[s:s+3])
			}
		}
	default:
		for y := 0; y < out.H; y++ {
			for x := 0; x < out.W; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				o := out.Offset(y, x, 0)
				out.Pix[o], out.Pix[o+1], out.Pix[o+2] = c.R, c.G, c.B
			}
		}
	}
	return out, nil
}

// ToImage converts a raster to an image: Gray for one channel, opaque NRGBA
// for three and NRGBA for four.
func ToImage(r *qsp.Raster) (image.Image, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, r.W, r.H)
	switch r.C {
	case 1:
		img := image.NewGray(rect)
		for y := 0; y < r.H; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+r.W], r.Pix[r.Offset(y, 0, 0):r.Offset(y, r.W, 0)])
		}
		return img, nil
	default:
		img := image.NewNRGBA(rect)
		for y := 0; y < r.H; y++ {
			for x := 0; x < r.W; x++ {
				o := r.Offset(y, x, 0)
				d := img.PixOffset(x, y)
				copy(img.Pix[d:d+3], r.Pix[o:o+3])
				if r.C == 4 {
					img.Pix[d+3] = r.Pix[o+3]
				} else {
					img.Pix[d+3] = 0xff
				}
			}
		}
		return img, nil
	}
}

// EncodePNG writes r losslessly as PNG.
func EncodePNG(w io.Writer, r *qsp.Raster) error {
	img, err := ToImage(r)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("%w: failed to encode png: %v", qsp.ErrIO, err)
	}
	return nil
}

// Load decodes the image at path.
func Load(path string) (*qsp.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	defer f.Close()
	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// SavePNG writes r to path as PNG.
func SavePNG(path string, r *qsp.Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	if err := EncodePNG(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	return nil
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ListImages returns the sorted paths of the supported images in dir.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", qsp.ErrIO, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && IsImage(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
