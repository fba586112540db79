package kernel

// SampledIoU estimates the volumetric IoU of two solids by testing the
// centers of a cells³ grid laid over the union of their bounding boxes.
// It converges to the exact value as cells grows and is independent of any
// polyhedral clipping, which makes it a cross-check for exact methods.
func SampledIoU(a, b Solid, cells int) float64 {
	if cells <= 0 {
		return 0
	}
	amin, amax := a.BoundingBox()
	bmin, bmax := b.BoundingBox()

	var lo, step [3]float64
	for i := 0; i < 3; i++ {
		lo[i] = min(amin[i], bmin[i])
		hi := max(amax[i], bmax[i])
		step[i] = (hi - lo[i]) / float64(cells)
	}

	var inA, inB, both int
	var p [3]float64
	for i := 0; i < cells; i++ {
		p[0] = lo[0] + (float64(i)+0.5)*step[0]
		for j := 0; j < cells; j++ {
			p[1] = lo[1] + (float64(j)+0.5)*step[1]
			for k := 0; k < cells; k++ {
				p[2] = lo[2] + (float64(k)+0.5)*step[2]
				ia := a.Contains(p)
				ib := b.Contains(p)
				if ia {
					inA++
				}
				if ib {
					inB++
				}
				if ia && ib {
					both++
				}
			}
		}
	}

	union := inA + inB - both
	if union == 0 {
		return 0
	}
	return float64(both) / float64(union)
}
