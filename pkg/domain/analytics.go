package domain

import "time"

// MetricSet is the fixed set of SRAG surveillance rates computed by the
// metrics collaborator for a time window and optional region filter.
type MetricSet struct {
	CaseIncrease CaseIncrease `json:"case_increase"`
	Mortality    Mortality    `json:"mortality"`
	ICUOccupancy ICUOccupancy `json:"icu_occupancy"`
	Vaccination  Vaccination  `json:"vaccination"`
}

// CaseIncrease compares the current reporting window against the previous one.
type CaseIncrease struct {
	IncreaseRate        float64 `json:"increase_rate"`
	CurrentPeriodCases  int     `json:"current_period_cases"`
	PreviousPeriodCases int     `json:"previous_period_cases"`
}

// Mortality is the share of reported cases with a fatal outcome.
type Mortality struct {
	MortalityRate float64 `json:"mortality_rate"`
	TotalDeaths   int     `json:"total_deaths"`
	TotalCases    int     `json:"total_cases"`
}

// ICUOccupancy is the share of hospitalizations admitted to intensive care.
type ICUOccupancy struct {
	OccupancyRate         float64 `json:"icu_occupancy_rate"`
	ICUAdmissions         int     `json:"icu_admissions"`
	TotalHospitalizations int     `json:"total_hospitalizations"`
}

// Vaccination is the share of reported cases with at least one dose.
type Vaccination struct {
	VaccinationRate     float64 `json:"vaccination_rate"`
	VaccinatedCases     int     `json:"vaccinated_cases"`
	FullVaccinationRate float64 `json:"full_vaccination_rate"`
}

// ChartPoint is one bucket of an aggregated case series.
type ChartPoint struct {
	Label string `json:"label"`
	Cases int    `json:"cases"`
}

// Article is one news-search hit. Published is always resolvable: the news
// adapter drops results without a publication date inside the requested window.
type Article struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Excerpt   string    `json:"excerpt"`
	Published time.Time `json:"published"`
}

// FieldDef is a data-dictionary entry for one dataset column.
type FieldDef struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name,omitempty"`
	Description string            `json:"description"`
	Values      map[string]string `json:"values,omitempty"`
	Similarity  float64           `json:"similarity,omitempty"`
}
