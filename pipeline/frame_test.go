package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const carsCSV = `name,year,selling_price,km_driven,fuel,owner
Maruti Swift Dzire,2014,450000,145500,Diesel,First Owner
Hyundai i20,2017,600000,40000,Petrol,Second Owner
BMW X1,2019,2500000,20000,Diesel,Test Drive Car
Maruti Alto,2010,120000,80000,CNG,Unknown Owner
`

func TestDecodeCSV(t *testing.T) {
	frame, err := DecodeCSV(strings.NewReader(carsCSV))
	require.NoError(t, err)

	assert.Equal(t, 4, frame.Len())
	assert.Equal(t, []string{"name", "year", "selling_price", "km_driven", "fuel", "owner"}, frame.Columns())
	assert.Equal(t, "Hyundai i20", frame.Row(1).Get("name"))
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestReadCSVStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffDate,Close\n2024-01-01,10\n"), 0o600))

	frame, err := ReadCSV(path)
	require.NoError(t, err)
	assert.True(t, frame.Has("Date"))
}

func TestFrameRenameDeriveDrop(t *testing.T) {
	frame, err := DecodeCSV(strings.NewReader(carsCSV))
	require.NoError(t, err)

	require.NoError(t, frame.Rename(map[string]string{"name": "Car_Name", "year": "Year", "missing": "Ignored"}))
	require.NoError(t, frame.Derive("Brand", func(r Row) (string, error) {
		return strings.Fields(r.Get("Car_Name"))[0], nil
	}))
	require.NoError(t, frame.Drop("Car_Name"))

	assert.False(t, frame.Has("Car_Name"))
	assert.Equal(t, "BMW", frame.Row(2).Get("Brand"))

	err = frame.Drop("Car_Name")
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestFrameMapOrdinal(t *testing.T) {
	frame, err := DecodeCSV(strings.NewReader(carsCSV))
	require.NoError(t, err)

	mapping := map[string]int{"Test Drive Car": 0, "First Owner": 1, "Second Owner": 2}
	require.NoError(t, frame.MapOrdinal("owner", mapping, 1))

	owners, err := frame.Floats("owner")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 0, 1}, owners)
}

func TestFrameOneHotDropFirst(t *testing.T) {
	frame, err := DecodeCSV(strings.NewReader(carsCSV))
	require.NoError(t, err)

	levels, err := frame.OneHot([]string{"fuel"}, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"CNG", "Diesel", "Petrol"}, levels["fuel"])
	assert.False(t, frame.Has("fuel"))
	assert.False(t, frame.Has("fuel_CNG"), "reference level must be dropped")

	cols := frame.Columns()
	assert.Equal(t, []string{"fuel_Diesel", "fuel_Petrol"}, cols[len(cols)-2:])

	m, err := frame.Matrix([]string{"fuel_Diesel", "fuel_Petrol"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}, {1, 0}, {0, 0}}, m)
}

func TestFrameOneHotKeepAll(t *testing.T) {
	frame, err := NewFrame([]string{"c"}, [][]string{{"b"}, {"a"}, {""}})
	require.NoError(t, err)

	_, err = frame.OneHot([]string{"c"}, false)
	require.NoError(t, err)

	m, err := frame.Matrix([]string{"c_a", "c_b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1}, {1, 0}, {0, 0}}, m)
}

func TestFrameSortShiftDropNA(t *testing.T) {
	frame, err := NewFrame([]string{"Day", "Close"}, [][]string{
		{"3", "30"},
		{"1", "10"},
		{"2", "20"},
	})
	require.NoError(t, err)

	require.NoError(t, frame.SortBy("Day", func(s string) (float64, error) {
		return parseFloat(s)
	}))
	require.NoError(t, frame.Shift("Close", "Next_Close", -1))
	require.NoError(t, frame.DropNA("Next_Close"))

	require.Equal(t, 2, frame.Len())
	next, err := frame.Floats("Next_Close")
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 30}, next)
}

func TestFrameFillNAMedian(t *testing.T) {
	frame, err := NewFrame([]string{"beds"}, [][]string{{"1"}, {""}, {"5"}, {"3"}, {"NaN"}})
	require.NoError(t, err)

	require.NoError(t, frame.FillNAMedian("beds"))
	beds, err := frame.Floats("beds")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 5, 3, 3}, beds)
}

func TestFrameMatrixRejectsText(t *testing.T) {
	frame, err := DecodeCSV(strings.NewReader(carsCSV))
	require.NoError(t, err)

	_, err = frame.Matrix([]string{"year", "fuel"})
	assert.Error(t, err)
}

func TestFrameTailAndRecords(t *testing.T) {
	frame, err := DecodeCSV(strings.NewReader(carsCSV))
	require.NoError(t, err)

	tail := frame.Tail(2)
	require.Equal(t, 2, tail.Len())
	records := tail.Records()
	assert.Equal(t, "BMW X1", records[0]["name"])
	assert.Equal(t, "Maruti Alto", records[1]["name"])
	assert.Equal(t, 4, frame.Tail(10).Len())
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 2, 3}))
	assert.Equal(t, 0.0, Median(nil))
}

func TestFrameKeep(t *testing.T) {
	frame, err := DecodeCSV(strings.NewReader(carsCSV))
	require.NoError(t, err)

	require.NoError(t, frame.Keep("year", "fuel", "present_price"))
	assert.Equal(t, []string{"year", "fuel"}, frame.Columns())
	assert.Equal(t, "2017", frame.Row(1).Get("year"))
}
