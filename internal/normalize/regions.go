package normalize

import "image"

// Region is a connected set of foreground pixels.
type Region struct {
	// Bounds is the tight bounding box of the region.
	Bounds image.Rectangle

	// Area is the number of pixels in the region.
	Area int
}

// regions labels the 8-connected foreground components of a binary image in
// raster order of their first pixel.
func regions(bin *image.Gray) []Region {
	w, h := bin.Bounds().Dx(), bin.Bounds().Dy()
	visited := make([]bool, w*h)

	var found []Region
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if bin.Pix[i] == foreground && !visited[i] {
				found = append(found, floodFill(bin, visited, x, y))
			}
		}
	}
	return found
}

// largestRegion returns the region with the most pixels. Equal areas keep the
// region found first in raster order.
func largestRegion(bin *image.Gray) (Region, bool) {
	var best Region
	ok := false
	for _, r := range regions(bin) {
		if !ok || r.Area > best.Area {
			best, ok = r, true
		}
	}
	return best, ok
}

// floodFill marks the component containing (startX, startY) as visited and
// returns its area and bounds. It uses an explicit stack so large strokes do
// not grow the goroutine stack.
func floodFill(bin *image.Gray, visited []bool, startX, startY int) Region {
	w, h := bin.Bounds().Dx(), bin.Bounds().Dy()
	r := Region{Bounds: image.Rect(startX, startY, startX+1, startY+1)}
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			continue
		}
		i := p.Y*w + p.X
		if visited[i] || bin.Pix[i] != foreground {
			continue
		}

		visited[i] = true
		r.Area++
		r.Bounds = r.Bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, image.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
	return r
}
