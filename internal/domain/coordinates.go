package domain

import "fmt"

// Immutable geographic coordinates (longitude, latitude).
type Coordinates struct {
	Lon float64
	Lat float64
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// LatLngString formats the pair the way navigation deep links expect ("lat,lng").
func (c Coordinates) LatLngString() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}
