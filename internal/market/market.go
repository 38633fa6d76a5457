// Package market holds the static reference data used to recognise and expand
// financial entities: tracked companies, regulators, sectors and ticker symbols.
package market

import "strings"

// Companies is the set of tracked listed companies.
var Companies = []string{
	"HDFC Bank", "ICICI Bank", "Reliance Retail", "TCS", "Infosys", "Adani Ports",
	"Maruti Suzuki", "L&T", "Coal India", "Bajaj Finance", "Paytm", "Air India",
	"SpiceJet",
}

// Regulators is the set of tracked regulators and central banks.
var Regulators = []string{"RBI", "SEBI", "US Fed", "Federal Reserve"}

var companySector = map[string]string{
	"HDFC Bank":       "Banking",
	"ICICI Bank":      "Banking",
	"Bajaj Finance":   "Financial Services",
	"Reliance Retail": "Retail",
	"TCS":             "IT Services",
	"Infosys":         "IT Services",
	"Adani Ports":     "Logistics",
	"L&T":             "Infrastructure",
	"Coal India":      "Mining",
	"Maruti Suzuki":   "Automobile",
	"Paytm":           "Fintech",
	"SpiceJet":        "Aviation",
	"Air India":       "Aviation",
}

var companySymbol = map[string]string{
	"HDFC Bank":       "HDFCBANK",
	"ICICI Bank":      "ICICIBANK",
	"TCS":             "TCS",
	"Infosys":         "INFY",
	"Reliance Retail": "RELIANCE",
	"Adani Ports":     "ADANIPORTS",
	"Maruti Suzuki":   "MARUTI",
	"L&T":             "LT",
	"Coal India":      "COALINDIA",
	"Bajaj Finance":   "BAJFINANCE",
	"Paytm":           "PAYTM",
	"Air India":       "AIRINDIA",
	"SpiceJet":        "SPICEJET",
}

var sectorStocks = map[string][]string{
	"Banking":            {"HDFCBANK", "ICICIBANK"},
	"Financial Services": {"BAJFINANCE"},
	"Retail":             {"RELIANCE"},
	"IT Services":        {"TCS", "INFY"},
	"Logistics":          {"ADANIPORTS"},
	"Infrastructure":     {"LT"},
	"Mining":             {"COALINDIA"},
	"Automobile":         {"MARUTI"},
	"Fintech":            {"PAYTM"},
	"Aviation":           {"AIRINDIA", "SPICEJET"},
}

// sectors a regulator oversees
var regulatorSectors = map[string][]string{
	"RBI":             {"Banking", "Financial Services", "Fintech"},
	"SEBI":            {"Financial Services"},
	"US Fed":          {"Banking"},
	"Federal Reserve": {"Banking"},
}

// RegulatedStocks are the symbols a regulator action is assumed to move.
var RegulatedStocks = []string{"HDFCBANK", "ICICIBANK", "BAJFINANCE"}

var regulatorConfidence = map[string]float64{
	"RBI":             0.6,
	"SEBI":            0.5,
	"US Fed":          0.5,
	"Federal Reserve": 0.5,
}

// DefaultRegulatorConfidence applies to regulators without a specific weight.
const DefaultRegulatorConfidence = 0.4

// Sectors returns every known sector name in a stable order.
func Sectors() []string {
	return []string{
		"Automobile", "Aviation", "Banking", "Financial Services", "Fintech",
		"IT Services", "Infrastructure", "Logistics", "Mining", "Retail",
	}
}

// SectorOf returns the primary sector of company.
func SectorOf(company string) (string, bool) {
	s, ok := companySector[Canonical(company, Companies)]
	return s, ok
}

// SymbolOf returns the ticker of company.
func SymbolOf(company string) (string, bool) {
	s, ok := companySymbol[Canonical(company, Companies)]
	return s, ok
}

// StocksIn returns the representative tickers of sector.
func StocksIn(sector string) []string {
	return sectorStocks[Canonical(sector, Sectors())]
}

// OverseenBy returns the sectors a regulator oversees.
func OverseenBy(regulator string) []string {
	return regulatorSectors[Canonical(regulator, Regulators)]
}

// RegulatorConfidence returns the impact confidence of an action by regulator.
func RegulatorConfidence(regulator string) float64 {
	if c, ok := regulatorConfidence[Canonical(regulator, Regulators)]; ok {
		return c
	}
	return DefaultRegulatorConfidence
}

// Canonical maps name to its spelling in known, ignoring case. Unknown names are
// returned unchanged.
func Canonical(name string, known []string) string {
	for _, k := range known {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return name
}
