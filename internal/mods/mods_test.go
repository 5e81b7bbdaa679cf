package mods_test

import (
	"testing"

	"pp-tracker/internal/mods"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDecode(t *testing.T) {
	Convey("Given a mask with both Nightcore and DoubleTime bits", t, func() {
		mask := mods.Mask(1<<9 | 1<<6)

		Convey("Then exactly one time-altering mod is decoded and it is Nightcore", func() {
			decoded := mods.Decode(mask)
			So(decoded, ShouldResemble, []mods.Mod{mods.Nightcore})
		})
	})

	Convey("Given a mask with only the DoubleTime bit", t, func() {
		Convey("Then DoubleTime is decoded", func() {
			So(mods.Decode(mods.Mask(1<<6)), ShouldResemble, []mods.Mod{mods.DoubleTime})
		})
	})

	Convey("Given a mask with Perfect and SuddenDeath bits", t, func() {
		Convey("Then Perfect suppresses SuddenDeath", func() {
			So(mods.Decode(mods.Mask(1<<14|1<<5)), ShouldResemble, []mods.Mod{mods.Perfect})
		})
	})

	Convey("Given an empty mask", t, func() {
		Convey("Then no mods are decoded", func() {
			So(mods.Decode(0), ShouldBeEmpty)
			So(mods.Mask(0).String(), ShouldEqual, "NM")
		})
	})

	Convey("Given the same mask decoded twice", t, func() {
		mask := mods.Encode([]mods.Mod{mods.HardRock, mods.Hidden, mods.Flashlight, mods.DoubleTime})

		Convey("Then the order is stable", func() {
			So(mods.Decode(mask), ShouldResemble, mods.Decode(mask))
			So(mods.Decode(mask), ShouldResemble, []mods.Mod{mods.DoubleTime, mods.Flashlight, mods.HardRock, mods.Hidden})
		})
	})
}

func TestEncode(t *testing.T) {
	Convey("Given a structured mod list", t, func() {
		Convey("When it contains only legacy mods", func() {
			mask := mods.Encode([]mods.Mod{mods.Hidden, mods.DoubleTime})

			Convey("Then each mod maps to its bit", func() {
				So(mask, ShouldEqual, mods.Mask(8|64))
				So(mask.String(), ShouldEqual, "DTHD")
			})
		})

		Convey("When it contains Nightcore", func() {
			mask := mods.Encode([]mods.Mod{mods.Nightcore})

			Convey("Then the legacy DoubleTime bit is set alongside it", func() {
				So(mask.Has(mods.DoubleTime), ShouldBeTrue)
				So(mask.Has(mods.Nightcore), ShouldBeTrue)
				So(mods.Decode(mask), ShouldResemble, []mods.Mod{mods.Nightcore})
			})
		})

		Convey("When it contains mods without a legacy bit", func() {
			mask := mods.Encode([]mods.Mod{mods.Classic, mods.DifficultyAdjust, mods.HardRock})

			Convey("Then those mods are dropped", func() {
				So(mask, ShouldEqual, mods.Mask(16))
				So(mods.Classic.Legacy(), ShouldBeFalse)
			})
		})

		Convey("When encoding the decoded mask again", func() {
			mask := mods.Encode([]mods.Mod{mods.Nightcore, mods.DoubleTime, mods.Hidden})

			Convey("Then the mask is a fixed point", func() {
				So(mods.Encode(mods.Decode(mask)), ShouldEqual, mask)
			})
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Given acronyms in mixed case", t, func() {
		Convey("Then known acronyms resolve", func() {
			m, ok := mods.Parse("hd")
			So(ok, ShouldBeTrue)
			So(m, ShouldEqual, mods.Hidden)

			m, ok = mods.Parse(" NC ")
			So(ok, ShouldBeTrue)
			So(m, ShouldEqual, mods.Nightcore)
		})

		Convey("Then unknown acronyms do not", func() {
			_, ok := mods.Parse("XX")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestParseMask(t *testing.T) {
	Convey("Given mods written in a url path", t, func() {
		Convey("Then a numeric mask is taken as is", func() {
			m, ok := mods.ParseMask("72")
			So(ok, ShouldBeTrue)
			So(m, ShouldEqual, mods.Mask(72))
		})

		Convey("Then concatenated acronyms are encoded", func() {
			m, ok := mods.ParseMask("hdnc")
			So(ok, ShouldBeTrue)
			So(m, ShouldEqual, mods.Encode([]mods.Mod{mods.Hidden, mods.Nightcore}))

			m, ok = mods.ParseMask("+HD,DT")
			So(ok, ShouldBeTrue)
			So(m, ShouldEqual, mods.Encode([]mods.Mod{mods.Hidden, mods.DoubleTime}))
		})

		Convey("Then NM means no mods", func() {
			m, ok := mods.ParseMask("NM")
			So(ok, ShouldBeTrue)
			So(m, ShouldEqual, mods.Mask(0))
		})

		Convey("Then garbage is rejected", func() {
			_, ok := mods.ParseMask("HDX")
			So(ok, ShouldBeFalse)
			_, ok = mods.ParseMask("ZZ")
			So(ok, ShouldBeFalse)
		})
	})
}
