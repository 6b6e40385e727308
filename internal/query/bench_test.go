package query

import (
	"fmt"
	"strings"
	"testing"
)

var benchQueries = []struct {
	name  string
	query string
}{
	{"simple", "printer"},
	{"qualifiers", "status:open assignee:@me label:hardware,network"},
	{"boolean", "printer or (vpn and not status:closed)"},
	{"quoted", `"second floor" involves:alix@example.com -label:"on hold"`},
	{"complex", `(status:open or status:pending) team:network,messaging -no:assignee (printer or "mail quota") #42`},
}

func BenchmarkTokenize(b *testing.B) {
	for _, q := range benchQueries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(q.query)))
			for b.Loop() {
				if _, err := Tokenize(q.query); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkParse(b *testing.B) {
	for _, q := range benchQueries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := Parse(q.query); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkParseParallel(b *testing.B) {
	query := benchQueries[len(benchQueries)-1].query
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := Parse(query); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkParseVaryingSize(b *testing.B) {
	for _, terms := range []int{10, 100, 1000} {
		parts := make([]string, terms)
		for i := range parts {
			if i%2 == 0 {
				parts[i] = fmt.Sprintf("term%d", i)
			} else {
				parts[i] = fmt.Sprintf("label:l%d", i)
			}
		}
		query := strings.Join(parts, " or ")
		b.Run(fmt.Sprintf("terms_%d", terms), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(query)))
			for b.Loop() {
				if _, err := Parse(query); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkString(b *testing.B) {
	q, err := Parse(benchQueries[len(benchQueries)-1].query)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		_ = q.String()
	}
}
