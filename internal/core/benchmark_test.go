package core_test

import (
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/JonMunkholm/crmimport/internal/store/memory"
)

// ============================================================================
// Conversion Function Benchmarks
// ============================================================================

// BenchmarkParseAmount benchmarks money parsing.
// This is a hot path for every order total and COD amount.
func BenchmarkParseAmount(b *testing.B) {
	testCases := []string{
		"123",
		"-456.78",
		"RM1,234.56",
		"(123.45)",     // Accounting negative
		"1,234,567.89", // Thousands separators
		"  999.99  ",   // Whitespace
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_, _ = core.ParseAmount(tc)
		}
	}
}

// BenchmarkParseDate benchmarks date parsing under the default day-first locale.
func BenchmarkParseDate(b *testing.B) {
	locale := core.DefaultLocale()
	testCases := []string{
		"2024-01-15",  // ISO format
		"15/01/2024",  // Day first
		"15 Jan 2024", // Text month
		"1/5/24",      // 2-digit year
		"45306",       // Excel serial
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_, _ = locale.ParseDate(tc)
		}
	}
}

func BenchmarkNormalizePhone(b *testing.B) {
	locale := core.DefaultLocale()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = locale.NormalizePhone("+60 12-345 6789")
		_, _, _ = locale.NormalizePhone("012 345 6789")
	}
}

// BenchmarkCleanCell benchmarks cell cleaning, applied to every cell.
func BenchmarkCleanCell(b *testing.B) {
	testCases := []string{
		"  simple value  ",
		"=\"00123\"", // Excel formula
		"'0123456789",
		"no change needed",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			core.CleanCell(tc)
		}
	}
}

func BenchmarkMakeHeaderIndex(b *testing.B) {
	header := []string{"Order Ref", "Name", "Phone", "Email", "Address", "Order Date",
		"Status", "Product", "Quantity", "Subtotal", "Shipping Fee", "Discount", "Total"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		core.MakeHeaderIndex(header)
	}
}

// ============================================================================
// Pipeline Benchmarks
// ============================================================================

// BenchmarkParse_CSV benchmarks reading 10k rows without validation.
func BenchmarkParse_CSV(b *testing.B) {
	data := customerCSV(10000)
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr, err := core.Parse(strings.NewReader(data), core.FormatCSV)
		if err != nil {
			b.Fatal(err)
		}
		for _, err := range rr.All() {
			if err != nil {
				b.Fatal(err)
			}
		}
		rr.Close()
	}
}

// BenchmarkValidate_Customers benchmarks a full validation session.
func BenchmarkValidate_Customers(b *testing.B) {
	data := customerCSV(10000, 17, 4242)
	im := newImporter(memory.New())
	ctx := context.Background()
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := im.Validate(ctx, core.TargetCustomers, csvFile(data)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkExecute_Customers benchmarks an import into an empty store.
func BenchmarkExecute_Customers(b *testing.B) {
	data := customerCSV(10000)
	ctx := context.Background()
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		im := newImporter(memory.New())
		b.StartTimer()

		if _, err := im.Execute(ctx, core.TargetCustomers, csvFile(data), opts(500, true)); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

func BenchmarkParseAmountParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = core.ParseAmount("RM1,234.56")
		}
	})
}

func BenchmarkCleanCellParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			core.CleanCell("  =\"00123\"  ")
		}
	})
}
