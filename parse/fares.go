package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

type FareAttributeCSV struct {
	FareID           string `csv:"fare_id"`
	Price            string `csv:"price"`
	CurrencyType     string `csv:"currency_type"`
	PaymentMethod    string `csv:"payment_method"`
	Transfers        string `csv:"transfers"`
	TransferDuration string `csv:"transfer_duration"`
}

type FareRuleCSV struct {
	FareID        string `csv:"fare_id"`
	RouteID       string `csv:"route_id"`
	OriginID      string `csv:"origin_id"`
	DestinationID string `csv:"destination_id"`
	ContainsID    string `csv:"contains_id"`
}

func ParseFareAttributes(writer storage.ScheduleWriter, data io.Reader) (map[string]bool, int, error) {
	fareCsv := []*FareAttributeCSV{}
	if err := gocsv.Unmarshal(data, &fareCsv); err != nil {
		return nil, 0, fmt.Errorf("unmarshaling fare_attributes csv: %w", err)
	}

	fares := map[string]bool{}
	for _, fa := range fareCsv {
		if fa.FareID == "" {
			return nil, 0, fmt.Errorf("empty fare_id")
		}
		if fares[fa.FareID] {
			return nil, 0, fmt.Errorf("repeated fare_id '%s'", fa.FareID)
		}
		fares[fa.FareID] = true

		price, err := parseFloat(fa.Price, "price")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "fare_id '%s'", fa.FareID)
		}
		if fa.CurrencyType == "" {
			return nil, 0, fmt.Errorf("fare_id '%s' has no currency_type", fa.FareID)
		}
		paymentMethod, err := parseOptionalInt8(fa.PaymentMethod, 0, "payment_method")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "fare_id '%s'", fa.FareID)
		}

		// Empty transfers means unlimited; -1 is the sentinel.
		transfers, err := parseOptionalInt8(fa.Transfers, -1, "transfers")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "fare_id '%s'", fa.FareID)
		}
		transferDuration, err := parseOptionalInt(fa.TransferDuration, 0, "transfer_duration")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "fare_id '%s'", fa.FareID)
		}

		err = writer.WriteFareAttribute(&model.FareAttribute{
			FareID:           fa.FareID,
			Price:            price,
			CurrencyType:     fa.CurrencyType,
			PaymentMethod:    paymentMethod,
			Transfers:        transfers,
			TransferDuration: transferDuration,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("writing fare attribute: %w", err)
		}
	}

	return fares, len(fareCsv), nil
}

// ParseFareRules writes fare_rules.txt. The fare and route sets may
// be nil when their tables failed to import, in which case the
// corresponding references go unchecked.
func ParseFareRules(writer storage.ScheduleWriter, data io.Reader, fares map[string]bool, routes map[string]bool) (int, error) {
	ruleCsv := []*FareRuleCSV{}
	if err := gocsv.Unmarshal(data, &ruleCsv); err != nil {
		return 0, fmt.Errorf("unmarshaling fare_rules csv: %w", err)
	}

	for i, fr := range ruleCsv {
		if fr.FareID == "" {
			return 0, fmt.Errorf("empty fare_id (row %d)", i+1)
		}
		if fares != nil && !fares[fr.FareID] {
			return 0, fmt.Errorf("unknown fare_id '%s' (row %d)", fr.FareID, i+1)
		}
		if routes != nil && fr.RouteID != "" && !routes[fr.RouteID] {
			return 0, fmt.Errorf("unknown route_id '%s' (row %d)", fr.RouteID, i+1)
		}

		err := writer.WriteFareRule(&model.FareRule{
			FareID:        fr.FareID,
			RouteID:       fr.RouteID,
			OriginID:      fr.OriginID,
			DestinationID: fr.DestinationID,
			ContainsID:    fr.ContainsID,
		})
		if err != nil {
			return 0, fmt.Errorf("writing fare rule: %w", err)
		}
	}

	return len(ruleCsv), nil
}
