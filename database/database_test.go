package database

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"pothole-service/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
	d    *Database
)

func setUp() {
	db, mock, _ = sqlmock.New()
	d = &Database{db: db}
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func TestInsertPothole(t *testing.T) {
	it(func() {
		testCases := []struct {
			name    string
			pothole models.Pothole

			insertID     int64
			rowsAffected int64

			errorExpected bool
		}{
			{
				name: "Insert detection",
				pothole: models.Pothole{
					Latitude:    40.7128,
					Longitude:   -74.0060,
					Severity:    "medium",
					Area:        0.15,
					DepthMeters: 0.125,
					ImagePath:   "pothole_20250101_120000.jpg",
					Confidence:  0.93,
				},

				insertID:     7,
				rowsAffected: 1,

				errorExpected: false,
			},
		}

		for _, testCase := range testCases {
			mock.ExpectExec(
				"INSERT INTO potholes \\(latitude, longitude, severity, area, depth_meters, image_path, confidence\\)").
				WithArgs(
					testCase.pothole.Latitude,
					testCase.pothole.Longitude,
					testCase.pothole.Severity,
					testCase.pothole.Area,
					testCase.pothole.DepthMeters,
					testCase.pothole.ImagePath,
					testCase.pothole.Confidence).
				WillReturnResult(sqlmock.NewResult(testCase.insertID, testCase.rowsAffected))

			id, err := d.InsertPothole(context.Background(), &testCase.pothole)
			if testCase.errorExpected != (err != nil) {
				t.Errorf("%s, InsertPothole: expected error: %v, got error: %v", testCase.name, testCase.errorExpected, err)
			}
			if id != testCase.insertID {
				t.Errorf("%s, InsertPothole: expected id %d, got %d", testCase.name, testCase.insertID, id)
			}
		}
	})
}

func TestGetPotholes(t *testing.T) {
	it(func() {
		ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

		columns := []string{"id", "latitude", "longitude", "severity", "area", "depth_meters", "image_path", "confidence", "ts", "status"}
		mock.ExpectQuery("(?s)SELECT .+ FROM potholes.+ORDER BY ts DESC").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(2, 40.7128, -74.0060, "high", 0.35, 0.225, "pothole_20250101_120000.jpg", 0.97, ts, "reported").
				AddRow(1, 40.7000, -74.0100, "low", 0.05, 0.075, "pothole_20250101_110000.jpg", 0.88, ts.Add(-time.Hour), "fixed"))

		potholes, err := d.GetPotholes(context.Background())
		if err != nil {
			t.Fatalf("GetPotholes: unexpected error: %v", err)
		}
		if len(potholes) != 2 {
			t.Fatalf("GetPotholes: expected 2 rows, got %d", len(potholes))
		}

		expected := models.Pothole{
			ID:          2,
			Latitude:    40.7128,
			Longitude:   -74.0060,
			Severity:    "high",
			Area:        0.35,
			DepthMeters: 0.225,
			ImagePath:   "pothole_20250101_120000.jpg",
			Confidence:  0.97,
			Timestamp:   ts,
			Status:      "reported",
		}
		if !reflect.DeepEqual(potholes[0], expected) {
			t.Errorf("GetPotholes: expected first row %+v, got %+v", expected, potholes[0])
		}
		if potholes[1].Status != "fixed" {
			t.Errorf("GetPotholes: expected second row status 'fixed', got %q", potholes[1].Status)
		}
	})
}

func TestGetPothole(t *testing.T) {
	it(func() {
		testCases := []struct {
			name string
			id   int64

			found bool
		}{
			{
				name:  "Existing detection",
				id:    3,
				found: true,
			},
			{
				name:  "Unknown detection",
				id:    99,
				found: false,
			},
		}

		ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		columns := []string{"id", "latitude", "longitude", "severity", "area", "depth_meters", "image_path", "confidence", "ts", "status"}

		for _, testCase := range testCases {
			query := mock.ExpectQuery("(?s)SELECT .+ FROM potholes.+WHERE id = (.+)").
				WithArgs(testCase.id)
			if testCase.found {
				query.WillReturnRows(sqlmock.NewRows(columns).
					AddRow(testCase.id, 40.7128, -74.0060, "medium", 0.15, 0.125, "pothole_20250101_120000.jpg", 0.93, ts, "reported"))
			} else {
				query.WillReturnError(sql.ErrNoRows)
			}

			p, err := d.GetPothole(context.Background(), testCase.id)
			if testCase.found {
				if err != nil {
					t.Errorf("%s, GetPothole: unexpected error: %v", testCase.name, err)
					continue
				}
				if p.ID != testCase.id {
					t.Errorf("%s, GetPothole: expected id %d, got %d", testCase.name, testCase.id, p.ID)
				}
			} else {
				if !errors.Is(err, sql.ErrNoRows) {
					t.Errorf("%s, GetPothole: expected sql.ErrNoRows, got %v", testCase.name, err)
				}
			}
		}
	})
}

func TestGetPotholesSince(t *testing.T) {
	it(func() {
		ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

		columns := []string{"id", "latitude", "longitude", "severity", "area", "depth_meters", "image_path", "confidence", "ts", "status"}
		mock.ExpectQuery("(?s)SELECT .+ FROM potholes.+WHERE id > (.+).+ORDER BY id ASC").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(6, 40.7128, -74.0060, "low", 0.04, 0.07, "pothole_20250101_130000.jpg", 0.81, ts, "reported"))

		potholes, err := d.GetPotholesSince(context.Background(), 5)
		if err != nil {
			t.Fatalf("GetPotholesSince: unexpected error: %v", err)
		}
		if len(potholes) != 1 || potholes[0].ID != 6 {
			t.Errorf("GetPotholesSince: expected single row with id 6, got %+v", potholes)
		}
	})
}

func TestUpdatePotholeStatus(t *testing.T) {
	it(func() {
		mock.ExpectExec("UPDATE potholes SET status = (.+) WHERE id = (.+)").
			WithArgs("fixed", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := d.UpdatePotholeStatus(context.Background(), 3, "fixed"); err != nil {
			t.Errorf("UpdatePotholeStatus: unexpected error: %v", err)
		}
	})
}

func TestCountBySeverity(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT severity, COUNT\\(\\*\\) FROM potholes GROUP BY severity").
			WillReturnRows(sqlmock.NewRows([]string{"severity", "count"}).
				FromCSVString("low,3\nmedium,2\nhigh,1"))

		counts, err := d.CountBySeverity(context.Background())
		if err != nil {
			t.Fatalf("CountBySeverity: unexpected error: %v", err)
		}

		expected := map[string]int{"low": 3, "medium": 2, "high": 1}
		if !reflect.DeepEqual(counts, expected) {
			t.Errorf("CountBySeverity: expected %v, got %v", expected, counts)
		}
	})
}
