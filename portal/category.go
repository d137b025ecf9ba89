package portal

// Fallback service categories, exactly as the portal labels them. When
// the patient's requested category is not offered, the request is filed
// under general specialist visits, and failing that under the catch-all
// category.
const (
	CategorySpecialistVisits = "Visite specialistiche"
	CategoryOtherServices    = "Altre prestazioni"
)

// chooseCategory returns the first candidate present in the portal's
// offered category list, trying the requested category first and then
// the two fixed fallbacks. Exhausting all three is a typed failure, not
// a silent default.
func chooseCategory(offered []string, requested string) (string, error) {
	candidates := []string{requested, CategorySpecialistVisits, CategoryOtherServices}

	for _, candidate := range candidates {
		for _, o := range offered {
			if o == candidate {
				return candidate, nil
			}
		}
	}

	return "", &CategoryNotFoundError{Requested: requested, Offered: offered}
}
