package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/geomind/placedex"
	"github.com/geomind/placedex/storage"
)

// seedPlaces is a small built-in sample of OSM-flavored places for local
// development. Fields: osm id, osm type, name, category key, category
// value, latitude, longitude.
var seedPlaces = []placedex.PlaceAttrs{
	place("way/26661896", "way", "Green Park", "leisure", "park", 51.5067, -0.1428),
	place("way/174935", "way", "Hyde Park", "leisure", "park", 51.5073, -0.1657),
	place("way/4677507", "way", "Holyrood Park", "leisure", "park", 55.9440, -3.1618),
	place("way/23846175", "way", "Regent's Park", "leisure", "park", 51.5313, -0.1570),
	place("relation/1536287", "relation", "Hampstead Heath", "leisure", "park", 51.5608, -0.1629),
	place("way/55091404", "way", "British Museum", "tourism", "museum", 51.5194, -0.1270),
	place("way/78127611", "way", "Natural History Museum", "tourism", "museum", 51.4967, -0.1764),
	place("way/30522961", "way", "National Gallery", "tourism", "museum", 51.5089, -0.1283),
	place("relation/1543125", "relation", "Tate Modern", "tourism", "museum", 51.5076, -0.0994),
	place("way/98435317", "way", "Science Museum", "tourism", "museum", 51.4978, -0.1745),
	place("node/25524263", "node", "The Eagle", "amenity", "pub", 52.2036, 0.1183),
	place("node/451152546", "node", "The Sheep Heid Inn", "amenity", "pub", 55.9436, -3.1479),
	place("node/1647836534", "node", "Monmouth Coffee", "amenity", "cafe", 51.5142, -0.1270),
	place("node/2911229337", "node", "Prufrock Coffee", "amenity", "cafe", 51.5200, -0.1108),
	place("way/34633854", "way", "St Pancras International", "railway", "station", 51.5322, -0.1269),
	place("way/110899233", "way", "Edinburgh Waverley", "railway", "station", 55.9521, -3.1892),
	place("relation/3324556", "relation", "King's Cross", "railway", "station", 51.5308, -0.1238),
	place("way/127933212", "way", "Royal Albert Hall", "amenity", "theatre", 51.5009, -0.1774),
	place("way/22842820", "way", "Shakespeare's Globe", "amenity", "theatre", 51.5081, -0.0972),
	place("way/65606612", "way", "Borough Market", "amenity", "marketplace", 51.5055, -0.0910),
	place("way/101849473", "way", "Camden Market", "amenity", "marketplace", 51.5416, -0.1460),
	place("relation/64870", "relation", "Tower of London", "historic", "castle", 51.5081, -0.0760),
	place("relation/1661714", "relation", "Edinburgh Castle", "historic", "castle", 55.9486, -3.1999),
	place("way/24624894", "way", "Westminster Abbey", "building", "cathedral", 51.4993, -0.1273),
	place("relation/1655583", "relation", "St Paul's Cathedral", "building", "cathedral", 51.5138, -0.0984),
	place("node/469761131", "node", "Daunt Books", "shop", "books", 51.5206, -0.1518),
	place("node/280820753", "node", "Foyles", "shop", "books", 51.5142, -0.1301),
	place("way/148534", "way", "Primrose Hill", "leisure", "park", 51.5396, -0.1607),
	place("way/38407425", "way", "Victoria Park", "leisure", "park", 51.5362, -0.0385),
	place("node/3019518064", "node", "The Ivy", "amenity", "restaurant", 51.5128, -0.1277),
}

var seedFileName = flag.String("src", "", "file of tab-separated seed data")
var dbPath = flag.String("db", "./places_db", "path to the database directory")

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

func place(osmID, osmType, name, catKey, catValue string, lat, lon float64) placedex.PlaceAttrs {
	return placedex.PlaceAttrs{
		OsmID:         osmID,
		OsmType:       osmType,
		Name:          name,
		CategoryKey:   catKey,
		CategoryValue: catValue,
		Latitude:      &lat,
		Longitude:     &lon,
		Tags:          map[string]string{catKey: catValue},
	}
}

// placesFromFile returns an iterator over places parsed from a file of
// tab-separated lines: osm_id, osm_type, name, category_key,
// category_value, latitude, longitude. Blank lines are skipped.
func placesFromFile(filename string) (iter.Seq2[placedex.PlaceAttrs, error], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(placedex.PlaceAttrs, error) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			attrs, err := parsePlaceLine(line)
			if !yield(attrs, err) {
				return
			}
		}
	}, nil
}

// placesFromSlice returns an iterator over a slice of place attributes.
func placesFromSlice(places []placedex.PlaceAttrs) iter.Seq2[placedex.PlaceAttrs, error] {
	return func(yield func(placedex.PlaceAttrs, error) bool) {
		for _, attrs := range places {
			if !yield(attrs, nil) {
				return
			}
		}
	}
}

func parsePlaceLine(line string) (placedex.PlaceAttrs, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return placedex.PlaceAttrs{}, fmt.Errorf("expected 7 tab-separated fields, got %d", len(fields))
	}

	lat, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return placedex.PlaceAttrs{}, fmt.Errorf("bad latitude %q: %w", fields[5], err)
	}
	lon, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return placedex.PlaceAttrs{}, fmt.Errorf("bad longitude %q: %w", fields[6], err)
	}

	return place(fields[0], fields[1], fields[2], fields[3], fields[4], lat, lon), nil
}

// seed creates every place from the source, skipping ones already present.
func seed(ctx context.Context, db *placedex.Database, source iter.Seq2[placedex.PlaceAttrs, error]) error {
	created, skipped := 0, 0
	for attrs, err := range source {
		if err != nil {
			return err
		}
		if _, err := db.CreatePlace(ctx, attrs); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				skipped++
				continue
			}
			return fmt.Errorf("failed to create %q: %w", attrs.Name, err)
		}
		created++
	}
	slog.Info("seeding complete", "created", created, "skipped", skipped)
	return nil
}

func main() {
	db, err := placedex.NewDatabase(*dbPath)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()

	var source iter.Seq2[placedex.PlaceAttrs, error]
	if seedFileName != nil && *seedFileName != "" {
		source, err = placesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = placesFromSlice(seedPlaces)
	}

	if err := seed(ctx, db, source); err != nil {
		panic(err)
	}
}
