package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"pp-tracker/internal/database"
	"pp-tracker/internal/domain"
	"pp-tracker/internal/mods"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "attributes.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleAttributes(key domain.MapModsKey) *domain.DifficultyAttributes {
	return &domain.DifficultyAttributes{
		Key:               key,
		StarRating:        6.4213,
		AimSR:             3.1,
		AimDiff:           120.5,
		AimHiddenFactor:   0.97,
		TapSR:             2.9,
		TapDiff:           99.25,
		StreamNoteCount:   412,
		MashTapDiff:       88.1,
		FingerControlSR:   1.7,
		FingerControlDiff: 40,
		FlashlightSR:      2.2,
		FlashlightDiff:    3.3,
		SliderFactor:      0.991,
		CheeseNoteCount:   12.5,
		Length:            213.4,
		ApproachRate:      9.6667,
		OverallDifficulty: 9.1,
		CircleSize:        4,
		DrainRate:         6,
		MaxCombo:          1843,
		ComboThroughputs:  []float64{0.1, 1.0 / 3.0, 2.5e-8, 1234567.891},
		MissThroughputs:   []float64{310.2, 305.9, 299},
		MissCounts:        []float64{0, 1.5, 3},
		CheeseLevels:      []float64{0, 0.25, 0.5, 0.75, 1},
		CheeseFactors:     []float64{1, 0.98, 0.95, 0.9, 0.85},
		UpdatedAt:         time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.UTC),
	}
}

func TestAttributeRepository(t *testing.T) {
	Convey("Given an empty attribute store", t, func() {
		ctx := context.Background()
		repo := NewAttributeRepository(openTestDB(t), zerolog.Nop())
		key := domain.MapModsKey{MapID: 129891, Mods: mods.Encode([]mods.Mod{mods.Hidden, mods.DoubleTime})}

		Convey("When reading a key that was never written", func() {
			got, err := repo.Get(ctx, key)

			Convey("Then the result is empty and not an error", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeNil)
			})
		})

		Convey("When a record is written and read back", func() {
			want := sampleAttributes(key)
			So(repo.Put(ctx, want), ShouldBeNil)
			got, err := repo.Get(ctx, key)

			Convey("Then the record is equal to the one written", func() {
				So(err, ShouldBeNil)
				So(got, ShouldNotBeNil)
				So(got.UpdatedAt.Equal(want.UpdatedAt), ShouldBeTrue)
				got.UpdatedAt = want.UpdatedAt
				So(got, ShouldResemble, want)
			})

			Convey("Then repeated cycles keep returning the same record", func() {
				for i := 0; i < 3; i++ {
					So(repo.Put(ctx, got), ShouldBeNil)
					again, err := repo.Get(ctx, key)
					So(err, ShouldBeNil)
					So(again.ComboThroughputs, ShouldResemble, want.ComboThroughputs)
					So(again.StarRating, ShouldEqual, want.StarRating)
				}
				n, err := repo.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, int64(1))
			})
		})

		Convey("When the same key is written twice", func() {
			first := sampleAttributes(key)
			second := sampleAttributes(key)
			second.StarRating = 7.01
			second.MissThroughputs = []float64{1}
			second.MissCounts = []float64{0}
			So(repo.Put(ctx, first), ShouldBeNil)
			So(repo.Put(ctx, second), ShouldBeNil)

			Convey("Then the last write wins without merging", func() {
				got, err := repo.Get(ctx, key)
				So(err, ShouldBeNil)
				So(got.StarRating, ShouldEqual, 7.01)
				So(got.MissThroughputs, ShouldResemble, []float64{1})
			})
		})

		Convey("When keys differ only by mods", func() {
			nomod := sampleAttributes(domain.MapModsKey{MapID: key.MapID})
			nomod.StarRating = 5
			So(repo.Put(ctx, nomod), ShouldBeNil)
			So(repo.Put(ctx, sampleAttributes(key)), ShouldBeNil)

			Convey("Then each key keeps its own record", func() {
				got, err := repo.Get(ctx, domain.MapModsKey{MapID: key.MapID})
				So(err, ShouldBeNil)
				So(got.StarRating, ShouldEqual, 5.0)
			})
		})

		Convey("When co-indexed sequences are misaligned", func() {
			bad := sampleAttributes(key)
			bad.MissCounts = bad.MissCounts[:1]
			err := repo.Put(ctx, bad)

			Convey("Then the write is rejected", func() {
				So(errors.Is(err, domain.ErrMisalignedSequences), ShouldBeTrue)
			})
		})

		Convey("When a stored sequence is corrupted", func() {
			So(repo.Put(ctx, sampleAttributes(key)), ShouldBeNil)
			_, err := repo.db.Exec(`UPDATE difficulty_attributes SET cheese_levels = '0.1 abc' WHERE map_id = ?`, key.MapID)
			So(err, ShouldBeNil)

			Convey("Then reading fails with a format error", func() {
				_, err := repo.Get(ctx, key)
				So(errors.Is(err, domain.ErrFormat), ShouldBeTrue)
			})
		})

		Convey("When the database is closed", func() {
			So(repo.db.Close(), ShouldBeNil)

			Convey("Then reads fail with a storage error", func() {
				_, err := repo.Get(ctx, key)
				So(errors.Is(err, domain.ErrStorage), ShouldBeTrue)
			})
		})

		Convey("When pruning by age", func() {
			old := sampleAttributes(domain.MapModsKey{MapID: 1})
			old.UpdatedAt = time.Now().Add(-48 * time.Hour).UTC()
			fresh := sampleAttributes(domain.MapModsKey{MapID: 2})
			fresh.UpdatedAt = time.Now().UTC()
			So(repo.Put(ctx, old), ShouldBeNil)
			So(repo.Put(ctx, fresh), ShouldBeNil)

			n, err := repo.Prune(ctx, time.Now().Add(-24*time.Hour))

			Convey("Then only stale records are removed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, int64(1))
				got, err := repo.Get(ctx, domain.MapModsKey{MapID: 2})
				So(err, ShouldBeNil)
				So(got, ShouldNotBeNil)
			})
		})

		Convey("When deleting a key", func() {
			So(repo.Put(ctx, sampleAttributes(key)), ShouldBeNil)
			So(repo.Delete(ctx, key), ShouldBeNil)

			Convey("Then it reads back as missing", func() {
				got, err := repo.Get(ctx, key)
				So(err, ShouldBeNil)
				So(got, ShouldBeNil)
			})
		})
	})
}

func TestSequenceCodec(t *testing.T) {
	Convey("Given arbitrary finite sequences", t, func() {
		rng := rand.New(rand.NewSource(42))

		Convey("Then decode(encode(seq)) returns seq exactly", func() {
			for n := 0; n <= 64; n++ {
				seq := make([]float64, n)
				for i := range seq {
					seq[i] = (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(40)-20))
				}
				got, err := DecodeSequence(EncodeSequence(seq))
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, n)
				for i := range seq {
					So(got[i], ShouldEqual, seq[i])
				}
			}
		})

		Convey("Then extreme magnitudes survive", func() {
			seq := []float64{math.MaxFloat64, math.SmallestNonzeroFloat64, -0.0, 1e-300, 123456789012345678}
			got, err := DecodeSequence(EncodeSequence(seq))
			So(err, ShouldBeNil)
			So(got, ShouldResemble, seq)
		})
	})

	Convey("Given encoded text", t, func() {
		Convey("Then values are space separated in invariant format", func() {
			So(EncodeSequence([]float64{1, 2.5, -0.125}), ShouldEqual, "1 2.5 -0.125")
			So(EncodeSequence(nil), ShouldEqual, "")
		})

		Convey("Then blank text decodes to an empty sequence", func() {
			got, err := DecodeSequence("   ")
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("Then a comma decimal separator is rejected", func() {
			_, err := DecodeSequence("1,5 2")
			So(errors.Is(err, domain.ErrFormat), ShouldBeTrue)
		})

		Convey("Then a non-numeric token is rejected", func() {
			_, err := DecodeSequence("1 two 3")
			So(errors.Is(err, domain.ErrFormat), ShouldBeTrue)
		})
	})
}
