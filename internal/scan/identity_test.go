package scan

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/id-scanner/internal/engine"
)

var _ = Describe("Coalesce", func() {
	It("should return the first non-zero string", func() {
		Expect(Coalesce("", "", "b", "c")).To(Equal("b"))
	})

	It("should return the first non-zero int", func() {
		Expect(Coalesce(0, 7, 9)).To(Equal(7))
	})

	It("should return the zero value when every candidate is empty", func() {
		Expect(Coalesce("", "")).To(BeEmpty())
		Expect(Coalesce[int]()).To(BeZero())
	})
})

var _ = Describe("ExtractIdentity", func() {
	var (
		result   *engine.IDResult
		identity Identity
	)

	BeforeEach(func() {
		result = &engine.IDResult{State: engine.Valid}
	})

	JustBeforeEach(func() {
		identity = ExtractIdentity(result)
	})

	When("only the Arabic first name is set", func() {
		BeforeEach(func() {
			result.FirstName.Arabic = "جين"
		})

		It("should use the Arabic value", func() {
			Expect(identity.FirstName).To(Equal("جين"))
		})
	})

	When("Latin and Cyrillic are both set", func() {
		BeforeEach(func() {
			result.LastName = engine.ScriptString{Latin: "Doe", Cyrillic: "Доу"}
		})

		It("should prefer Latin", func() {
			Expect(identity.LastName).To(Equal("Doe"))
		})
	})

	When("only Cyrillic is set", func() {
		BeforeEach(func() {
			result.LastName = engine.ScriptString{Cyrillic: "Доу", Arabic: "دو"}
		})

		It("should prefer Cyrillic over Arabic", func() {
			Expect(identity.LastName).To(Equal("Доу"))
		})
	})

	When("only the MRZ is populated", func() {
		BeforeEach(func() {
			result.MRZ = engine.MRZ{PrimaryID: "DOE", SecondaryID: "JANE"}
		})

		It("should take the first name from the secondary ID", func() {
			Expect(identity.FirstName).To(Equal("JANE"))
		})

		It("should take the last name from the primary ID", func() {
			Expect(identity.LastName).To(Equal("DOE"))
		})

		It("should build the full name from the MRZ", func() {
			Expect(identity.FullName).To(Equal("JANE DOE"))
		})
	})

	When("only the full name is set", func() {
		BeforeEach(func() {
			result.FullName.Latin = "Jane Doe"
		})

		It("should display the full name", func() {
			Expect(identity.FirstName).To(BeEmpty())
			Expect(identity.LastName).To(BeEmpty())
			Expect(identity.DisplayName()).To(Equal("Jane Doe"))
		})
	})

	When("first and last names are set but no full name", func() {
		BeforeEach(func() {
			result.FirstName.Cyrillic = "Анна"
			result.LastName.Cyrillic = "Петрова"
			result.MRZ = engine.MRZ{PrimaryID: "PETROVA", SecondaryID: "ANNA"}
		})

		It("should build the full name from them before the MRZ", func() {
			Expect(identity.FullName).To(Equal("Анна Петрова"))
		})
	})

	When("only the first name is known", func() {
		BeforeEach(func() {
			result.FirstName.Latin = "Jane"
		})

		It("should not pad the names with spaces", func() {
			Expect(identity.FullName).To(Equal("Jane"))
			Expect(identity.DisplayName()).To(Equal("Jane"))
		})
	})

	When("the structured birth day is missing", func() {
		BeforeEach(func() {
			result.DateOfBirth = engine.Date{Year: 1990, Month: 4}
			result.MRZ.DateOfBirth = engine.Date{Year: 1991, Month: 5, Day: 17}
		})

		It("should fall back per component", func() {
			Expect(identity.DateOfBirth).To(Equal(engine.Date{Year: 1990, Month: 4, Day: 17}))
		})
	})

	When("nothing is populated", func() {
		It("should return an empty identity", func() {
			Expect(identity).To(Equal(Identity{}))
		})
	})
})

var _ = Describe("Greeting", func() {
	It("should greet with the display name and birth date", func() {
		identity := Identity{FullName: "Jane Doe", DateOfBirth: engine.Date{Year: 1990, Month: 2, Day: 14}}
		Expect(Greeting(identity)).To(Equal("Hello, Jane Doe!\n You were born on 1990-2-14."))
	})

	It("should prefer first and last name", func() {
		identity := Identity{FirstName: "Jane", LastName: "Doe", FullName: "Jane Q. Doe"}
		Expect(Greeting(identity)).To(HavePrefix("Hello, Jane Doe!"))
	})
})
