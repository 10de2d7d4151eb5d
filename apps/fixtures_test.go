package apps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// houseCSV is an exact linear relation plus an ocean proximity offset, with one
// missing total_bedrooms cell.
func houseCSV() string {
	var b strings.Builder
	b.WriteString("longitude,latitude,housing_median_age,total_rooms,total_bedrooms,population,households,median_income,median_house_value,ocean_proximity\n")
	oceans := []string{"<1H OCEAN", "INLAND", "NEAR BAY"}
	offsets := map[string]float64{"<1H OCEAN": 0, "INLAND": -50000, "NEAR BAY": 30000}
	for i := 0; i < 40; i++ {
		income := 2 + float64(i%9)*0.75
		age := float64(10 + (i*7)%30)
		ocean := oceans[i%3]
		value := 40000*income + 500*age + offsets[ocean]
		bedrooms := fmt.Sprintf("%d", 100+i)
		if i == 5 {
			bedrooms = ""
		}
		fmt.Fprintf(&b, "%.2f,%.2f,%.0f,%d,%s,%d,%d,%.4f,%.1f,%s\n",
			-122.0+float64(i)*0.01, 37.0+float64(i%5)*0.1, age, 800+i*3, bedrooms, 300+i, 120+i%4, income, value, ocean)
	}
	return b.String()
}

func carCSV() string {
	var b strings.Builder
	b.WriteString("name,year,selling_price,km_driven,fuel,seller_type,transmission,owner\n")
	names := []string{"Maruti Swift Dzire VDI", "Hyundai i20 Asta", "BMW X1 sDrive20d"}
	base := map[string]float64{"Maruti": 300000, "Hyundai": 450000, "BMW": 2500000}
	owners := []string{"First Owner", "Second Owner", "Third Owner", "Test Drive Car", "Unknown Owner"}
	for i := 0; i < 36; i++ {
		name := names[i%3]
		year := 2008 + i%12
		km := 10000 + (i*7919)%120000
		fuel := "Petrol"
		if i%4 == 0 {
			fuel = "Diesel"
		}
		seller := "Individual"
		if i%5 == 0 {
			seller = "Dealer"
		}
		transmission := "Manual"
		if name == names[2] {
			transmission = "Automatic"
		}
		price := base[Brand(name)] + float64(year-2008)*25000 - float64(km)*0.5
		fmt.Fprintf(&b, "%s,%d,%.0f,%d,%s,%s,%s,%s\n", name, year, price, km, fuel, seller, transmission, owners[i%len(owners)])
	}
	return b.String()
}

// stockCSV lists 30 trading days out of order. The earliest day has High below
// Low and is rejected by cleaning; on the rest Close rises by exactly 1 a day.
func stockCSV() string {
	var rows []string
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		c := 100 + float64(i)
		high, low := c+2, c-2
		if i == 0 {
			high, low = c-5, c+5
		}
		rows = append(rows, fmt.Sprintf("%s,%.2f,%.2f,%.2f,%.2f,%d", day, c-1, high, low, c, 1000+(i*37)%11))
	}
	// reverse to make sure the trainer sorts by date
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return "Date,Open,High,Low,Close,Volume\n" + strings.Join(rows, "\n") + "\n"
}
