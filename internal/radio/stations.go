// Package radio keeps the named internet radio stations the bot can tune into.
package radio

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStation = errors.New("station not found")

type Station struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Stations struct {
	stations []Station
}

func NewStations(stations []Station) *Stations {
	return &Stations{
		stations: append([]Station(nil), stations...),
	}
}

func (s *Stations) All() []Station {
	return append([]Station(nil), s.stations...)
}

// Get looks a station up by name, ignoring case.
func (s *Stations) Get(name string) (Station, error) {
	for _, station := range s.stations {
		if strings.EqualFold(station.Name, name) {
			return station, nil
		}
	}
	return Station{}, fmt.Errorf("%w: %s", ErrUnknownStation, name)
}

func (s *Stations) Names() []string {
	names := make([]string, len(s.stations))
	for i, station := range s.stations {
		names[i] = station.Name
	}
	return names
}
