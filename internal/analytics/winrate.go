package analytics

import "github.com/alanyoungcy/venuecompare/internal/domain"

// WinRates tallies buy and sell winners per size over snaps. Sizes are those
// of the first snapshot. Ties count toward neither numerator nor denominator,
// and a side with no decisive outcome reports domain.UndefinedPercent.
func WinRates(snaps []domain.ComparisonSnapshot, pair domain.VenuePair) []domain.SizeWinRate {
	if len(snaps) == 0 {
		return nil
	}

	type tally struct {
		samples   int
		buy, sell map[domain.Outcome]int
	}
	sizes := make([]float64, 0, len(snaps[0].Outcomes))
	tallies := make(map[float64]*tally, len(snaps[0].Outcomes))
	for _, o := range snaps[0].Outcomes {
		if _, dup := tallies[o.Size]; dup {
			continue
		}
		sizes = append(sizes, o.Size)
		tallies[o.Size] = &tally{buy: map[domain.Outcome]int{}, sell: map[domain.Outcome]int{}}
	}

	for _, s := range snaps {
		for _, o := range s.Outcomes {
			t, ok := tallies[o.Size]
			if !ok {
				continue
			}
			t.samples++
			t.buy[o.Buy]++
			t.sell[o.Sell]++
		}
	}

	out := make([]domain.SizeWinRate, 0, len(sizes))
	for _, size := range sizes {
		t := tallies[size]
		out = append(out, domain.SizeWinRate{
			Size:     size,
			Samples:  t.samples,
			Buy:      sideRates(t.buy, pair),
			BuyTies:  t.buy[domain.OutcomeTie],
			Sell:     sideRates(t.sell, pair),
			SellTies: t.sell[domain.OutcomeTie],
		})
	}
	return out
}

func sideRates(counts map[domain.Outcome]int, pair domain.VenuePair) []domain.VenueWinRate {
	first := counts[domain.VenueOutcome(pair.First)]
	second := counts[domain.VenueOutcome(pair.Second)]
	decisive := first + second

	return []domain.VenueWinRate{
		{Venue: pair.First, Wins: first, Rate: percentOf(first, decisive)},
		{Venue: pair.Second, Wins: second, Rate: percentOf(second, decisive)},
	}
}

func percentOf(wins, total int) domain.Percent {
	if total == 0 {
		return domain.UndefinedPercent
	}
	return domain.DefinedPercent(float64(wins) / float64(total) * 100)
}
