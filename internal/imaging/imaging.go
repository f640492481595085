// Package imaging holds the pixel operations shared by rasterization,
// segmentation and compositing.
package imaging

import (
	"bytes"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ToRGBA returns img as a zero-origin *image.RGBA, copying only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == b.Dx()*4 {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

// Crop copies r out of img into a new zero-origin image.
func Crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, r.Min, stddraw.Src)
	return dst
}

// ToGray converts an image to 8-bit luminance.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			row := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride:]
			for x := 0; x < b.Dx(); x++ {
				i := (x + b.Min.X - rgba.Rect.Min.X) * 4
				r, g, bl := uint32(row[i]), uint32(row[i+1]), uint32(row[i+2])
				gray.Pix[y*gray.Stride+x] = uint8((19595*r + 38470*g + 7471*bl + 1<<15) >> 16)
			}
		}
		return gray
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			gray.SetGray(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return gray
}

// GaussianBlur applies a separable 5x5 binomial kernel.
func GaussianBlur(src *image.Gray) *image.Gray {
	kernel := [5]int{1, 4, 6, 4, 1}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	tmp := make([]int, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				sum += kernel[k+2] * int(src.Pix[y*src.Stride+clamp(x+k, 0, w-1)])
			}
			tmp[y*w+x] = sum
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				sum += kernel[k+2] * tmp[clamp(y+k, 0, h-1)*w+x]
			}
			dst.Pix[y*dst.Stride+x] = uint8((sum + 128) / 256)
		}
	}
	return dst
}

// AutoContrast stretches each channel so that cutoff percent of the
// darkest and lightest pixels are clipped to 0 and 255.
func AutoContrast(img image.Image, cutoff float64) *image.RGBA {
	src := ToRGBA(img)
	dst := image.NewRGBA(src.Rect)
	total := src.Rect.Dx() * src.Rect.Dy()
	if total == 0 {
		return dst
	}

	var lut [3][256]uint8
	for c := 0; c < 3; c++ {
		var hist [256]int
		for i := c; i < len(src.Pix); i += 4 {
			hist[src.Pix[i]]++
		}
		lo, hi := channelRange(hist, total, cutoff)
		for v := 0; v < 256; v++ {
			switch {
			case hi <= lo:
				lut[c][v] = uint8(v)
			case v <= lo:
				lut[c][v] = 0
			case v >= hi:
				lut[c][v] = 255
			default:
				lut[c][v] = uint8(float64(v-lo)*255/float64(hi-lo) + 0.5)
			}
		}
	}

	for i := 0; i < len(src.Pix); i += 4 {
		dst.Pix[i] = lut[0][src.Pix[i]]
		dst.Pix[i+1] = lut[1][src.Pix[i+1]]
		dst.Pix[i+2] = lut[2][src.Pix[i+2]]
		dst.Pix[i+3] = 255
	}
	return dst
}

func channelRange(hist [256]int, total int, cutoff float64) (int, int) {
	cut := int(float64(total) * cutoff / 100)

	lo, acc := 0, 0
	for lo < 255 {
		acc += hist[lo]
		if acc > cut {
			break
		}
		lo++
	}
	hi := 255
	acc = 0
	for hi > 0 {
		acc += hist[hi]
		if acc > cut {
			break
		}
		hi--
	}
	return lo, hi
}

// Sharpen applies the classic 3x3 sharpen kernel (center 32, neighbours -2, /16).
func Sharpen(img image.Image) *image.RGBA {
	src := ToRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			o := y*src.Stride + x*4
			for c := 0; c < 3; c++ {
				sum := 32 * int(src.Pix[o+c])
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						sum -= 2 * int(src.Pix[o+dy*src.Stride+dx*4+c])
					}
				}
				dst.Pix[o+c] = uint8(clamp(sum/16, 0, 255))
			}
		}
	}
	return dst
}

// ScaleToWidth resizes img to the given width, keeping aspect ratio.
func ScaleToWidth(img image.Image, width int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == 0 {
		return image.NewRGBA(image.Rect(0, 0, width, 0))
	}
	height := int(float64(b.Dy())*float64(width)/float64(b.Dx()) + 0.5)
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Downscale shrinks img so its width does not exceed maxWidth and reports
// the factor applied. Images already small enough are returned as-is.
func Downscale(img image.Image, maxWidth int) (image.Image, float64) {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img, 1
	}
	scale := float64(maxWidth) / float64(b.Dx())
	height := int(float64(b.Dy())*scale + 0.5)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, scale
}

// Fill paints the whole image with c.
func Fill(dst *image.RGBA, c color.RGBA) {
	if len(dst.Pix) == 0 {
		return
	}
	dst.Pix[0], dst.Pix[1], dst.Pix[2], dst.Pix[3] = c.R, c.G, c.B, c.A
	for filled := 4; filled < len(dst.Pix); filled *= 2 {
		copy(dst.Pix[filled:], dst.Pix[:filled])
	}
}

// EncodeJPEG exports an image for OCR, the language model and upload.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
