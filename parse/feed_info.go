package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

type FeedInfoCSV struct {
	PublisherName string `csv:"feed_publisher_name"`
	PublisherURL  string `csv:"feed_publisher_url"`
	Lang          string `csv:"feed_lang"`
	StartDate     string `csv:"feed_start_date"`
	EndDate       string `csv:"feed_end_date"`
	Version       string `csv:"feed_version"`
}

func ParseFeedInfo(writer storage.ScheduleWriter, data io.Reader) (int, error) {
	infoCsv := []*FeedInfoCSV{}
	if err := gocsv.Unmarshal(data, &infoCsv); err != nil {
		return 0, fmt.Errorf("unmarshaling feed_info csv: %w", err)
	}

	if len(infoCsv) == 0 {
		return 0, fmt.Errorf("no feed_info record found")
	}
	if len(infoCsv) > 1 {
		return 0, fmt.Errorf("multiple feed_info records")
	}

	fi := infoCsv[0]
	if fi.PublisherName == "" {
		return 0, fmt.Errorf("missing feed_publisher_name")
	}

	err := writer.WriteFeedInfo(&model.FeedInfo{
		PublisherName: fi.PublisherName,
		PublisherURL:  fi.PublisherURL,
		Lang:          fi.Lang,
		StartDate:     fi.StartDate,
		EndDate:       fi.EndDate,
		Version:       fi.Version,
	})
	if err != nil {
		return 0, fmt.Errorf("writing feed info: %w", err)
	}

	return 1, nil
}
