package tileset

import (
	gomath "math"

	"github.com/Faultbox/meshtiler/pkg/math"
)

// WGS84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// ECEF converts geodetic latitude and longitude in degrees and height in
// meters to Earth-centered Earth-fixed coordinates.
func ECEF(lat, lon, height float64) math.Vec3 {
	phi := lat * gomath.Pi / 180
	lambda := lon * gomath.Pi / 180
	sinPhi, cosPhi := gomath.Sincos(phi)
	sinLambda, cosLambda := gomath.Sincos(lambda)
	n := wgs84A / gomath.Sqrt(1-wgs84E2*sinPhi*sinPhi)
	return math.Vec3{
		X: (n + height) * cosPhi * cosLambda,
		Y: (n + height) * cosPhi * sinLambda,
		Z: (n*(1-wgs84E2) + height) * sinPhi,
	}
}

// ENUTransform returns the matrix placing a local East-North-Up frame at the
// given geodetic position into ECEF.
func ENUTransform(lat, lon, height float64) math.Mat4 {
	phi := lat * gomath.Pi / 180
	lambda := lon * gomath.Pi / 180
	sinPhi, cosPhi := gomath.Sincos(phi)
	sinLambda, cosLambda := gomath.Sincos(lambda)

	east := math.Vec3{X: -sinLambda, Y: cosLambda}
	north := math.Vec3{X: -sinPhi * cosLambda, Y: -sinPhi * sinLambda, Z: cosPhi}
	up := math.Vec3{X: cosPhi * cosLambda, Y: cosPhi * sinLambda, Z: sinPhi}
	return math.FromBasis(east, north, up, ECEF(lat, lon, height))
}
