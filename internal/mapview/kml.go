package mapview

import (
	"image/color"
	"io"

	kml "github.com/twpayne/go-kml"
)

var styleColors = map[string]color.RGBA{
	ColorGray:   {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	ColorRed:    {R: 0xe0, G: 0x20, B: 0x20, A: 0xff},
	ColorOrange: {R: 0xff, G: 0x8c, B: 0x00, A: 0xff},
	ColorGreen:  {R: 0x20, G: 0xa0, B: 0x40, A: 0xff},
}

func styleID(c string) string { return "marker-" + c }

// WriteKML writes markers as a KML document with one placemark per marker,
// styled by marker colour.
func WriteKML(w io.Writer, name string, markers []Marker) error {
	children := []kml.Element{kml.Name(name)}
	for _, c := range []string{ColorGray, ColorRed, ColorOrange, ColorGreen} {
		children = append(children, kml.SharedStyle(styleID(c),
			kml.IconStyle(kml.Color(styleColors[c])),
		))
	}
	for _, m := range markers {
		children = append(children, kml.Placemark(
			kml.Name(m.ID),
			kml.Description(m.Popup),
			kml.StyleURL("#"+styleID(m.Color)),
			kml.Point(kml.Coordinates(kml.Coordinate{Lon: m.Lng, Lat: m.Lat})),
		))
	}
	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}
