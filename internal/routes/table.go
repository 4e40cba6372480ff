// Package routes holds the delivery route reference table and the
// validator that scores observations against it.
package routes

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"

	"podwatch/internal/delivery"
)

// DeliveryRoute is one expected delivery: recipient, location and window.
type DeliveryRoute struct {
	RouteID       string
	RecipientName string
	CEP           string
	NFNumber      string
	Location      delivery.LatLon
	HasGPS        bool
	WindowStart   string
	WindowEnd     string
}

// LoadTable reads the route reference CSV. A missing file is not an error:
// validation degrades to an empty table. Rows with unparseable coordinates
// are kept for field matching but excluded from GPS search.
func LoadTable(path string) ([]DeliveryRoute, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[routes] table not found: %s, continuing with empty table", path)
			return nil, nil
		}
		return nil, fmt.Errorf("open route table: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var routes []DeliveryRoute
	for _, row := range records[1:] {
		rt := DeliveryRoute{
			RouteID:       field(row, "route_id"),
			RecipientName: field(row, "recipient_name"),
			CEP:           field(row, "cep"),
			NFNumber:      field(row, "nf_number"),
			WindowStart:   field(row, "delivery_window_start"),
			WindowEnd:     field(row, "delivery_window_end"),
		}

		lat, errLat := strconv.ParseFloat(field(row, "gps_lat"), 64)
		lon, errLon := strconv.ParseFloat(field(row, "gps_lon"), 64)
		if errLat == nil && errLon == nil {
			rt.Location = delivery.LatLon{Lat: lat, Lon: lon}
			rt.HasGPS = true
		}

		routes = append(routes, rt)
	}

	log.Printf("[routes] loaded %d routes from %s", len(routes), path)
	return routes, nil
}
