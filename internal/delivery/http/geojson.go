package http

import (
	"github.com/gofiber/fiber/v2"
	geojson "github.com/paulmach/go.geojson"

	"github.com/smartcity/trafficops/internal/domain"
	"github.com/smartcity/trafficops/pkg/utils"
)

// GetDensityGeoJSON exports the density points as a FeatureCollection
func (h *Handler) GetDensityGeoJSON(c *fiber.Ctx) error {
	snap, _ := h.dash.Density.Snapshot()
	return sendGeoJSON(c, densityFeatures(snap.Points))
}

// GetClosuresGeoJSON exports the lane closures as begin-to-end line strings
func (h *Handler) GetClosuresGeoJSON(c *fiber.Ctx) error {
	return sendGeoJSON(c, closureFeatures(h.dash.Closures.Closures()))
}

func densityFeatures(points []domain.HeatmapPoint) *geojson.FeatureCollection {
	maxCount := 0
	for _, p := range points {
		if p.VehicleCount > maxCount {
			maxCount = p.VehicleCount
		}
	}

	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		if !p.Position().Valid() {
			continue
		}
		f := geojson.NewPointFeature([]float64{p.Longitude, p.Latitude})
		f.SetProperty("vehicle_count", p.VehicleCount)
		f.SetProperty("intensity", p.Intensity)
		// heat layer weight relative to the busiest point
		f.SetProperty("weight", utils.Weight(p.VehicleCount, maxCount))
		f.SetProperty("timestamp", p.Timestamp)
		fc.AddFeature(f)
	}
	return fc
}

func closureFeatures(closures []domain.LaneClosure) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, cl := range closures {
		if !cl.Begin.Valid() || !cl.End.Valid() {
			continue
		}
		f := geojson.NewLineStringFeature([][]float64{
			{cl.Begin.Lng, cl.Begin.Lat},
			{cl.End.Lng, cl.End.Lat},
		})
		f.ID = cl.ID
		f.SetProperty("route", cl.Route)
		f.SetProperty("severity", cl.Severity)
		f.SetProperty("status", cl.Status)
		f.SetProperty("lanes_closed", cl.LanesClosed)
		f.SetProperty("lanes_existing", cl.LanesExisting)
		fc.AddFeature(f)
	}
	return fc
}

func sendGeoJSON(c *fiber.Ctx, fc *geojson.FeatureCollection) error {
	body, err := fc.MarshalJSON()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to encode GeoJSON")
	}
	c.Set(fiber.HeaderContentType, "application/geo+json")
	return c.Send(body)
}
