package normalize

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
)

const (
	denoiseSize  = 5
	denoiseSigma = 1.1

	thresholdBlock = 11
	thresholdSigma = 2.0
	thresholdC     = 2

	foreground = 255
)

// gaussianKernel returns a normalized size x size Gaussian kernel.
func gaussianKernel(size int, sigma float64) convolution.Matrix {
	k := convolution.NewKernel(size, size)
	c := float64(size / 2)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			k.Matrix[y*size+x] = math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
		}
	}
	return k.Normalized()
}

// convolve applies k to img with edge extension and rounds the result.
func convolve(img *image.Gray, k convolution.Matrix) *image.Gray {
	return redChannel(convolution.Convolve(img, k, &convolution.Options{Bias: 0.5}))
}

// redChannel extracts the first channel of an RGBA image produced from gray input.
func redChannel(rgba *image.RGBA) *image.Gray {
	b := rgba.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := rgba.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = rgba.Pix[row+4*x]
		}
	}
	return out
}

func invert(img *image.Gray) *image.Gray {
	return redChannel(effect.Invert(img))
}

func denoise(img *image.Gray) *image.Gray {
	return convolve(img, gaussianKernel(denoiseSize, denoiseSigma))
}

// adaptiveThreshold marks a pixel as foreground when it is at least thresholdC
// darker than its Gaussian-weighted neighborhood.
func adaptiveThreshold(img *image.Gray) *image.Gray {
	local := convolve(img, gaussianKernel(thresholdBlock, thresholdSigma))
	out := image.NewGray(img.Bounds())
	for i, p := range img.Pix {
		if int(p) <= int(local.Pix[i])-thresholdC {
			out.Pix[i] = foreground
		}
	}
	return out
}

func opening(img *image.Gray) *image.Gray {
	return redChannel(effect.Dilate(effect.Erode(img, 1), 1))
}

func closing(img *image.Gray) *image.Gray {
	return redChannel(effect.Erode(effect.Dilate(img, 1), 1))
}
