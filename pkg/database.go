package evtbuilder

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "modernc.org/sqlite"
)

// LoadChannelMapFromDB reads the channel map and calibration valid for
// runNumber.
func LoadChannelMapFromDB(dbConn *sqlx.DB, runNumber int) (*ChannelMap, error) {
	channels, err := getChannelsFromDB(dbConn, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting channel map from database: %w", err)
		logger.Error(errMessage.Error())
		return nil, &ErrLoadTable{Table: "ChannelMapping", Err: err}
	}
	calibrations, err := getCalibrationsFromDB(dbConn, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting calibrations from database: %w", err)
		logger.Error(errMessage.Error())
		return nil, &ErrLoadTable{Table: "Calibration", Err: err}
	}
	return NewChannelMap(channels, calibrations)
}

// ConnectToDatabase opens the channel database. The sqlite driver reads a
// local file, used for offline runs.
func ConnectToDatabase(config Configuration) (*sqlx.DB, error) {
	switch config.DBDriver {
	case "sqlite":
		db, err := sqlx.Connect("sqlite", config.DBPath)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		return db, nil
	case "mysql", "":
		port := "3306"
		dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", config.User, config.Passwd, config.Host, port, config.DBName)
		return sqlx.Connect("mysql", dbURI)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.DBDriver)
	}
}

func getChannelsFromDB(db *sqlx.DB, runNumber int) ([]ChannelMappingEntry, error) {
	query := "SELECT Source, Crate, Slot, Channel, Subsystem, ArrayPosition, Segment, Subposition " +
		"FROM ChannelMapping WHERE MinRun <= ? and MaxRun >= ? ORDER BY Source, Crate, Slot, Channel"

	if configuration.Verbosity > 0 {
		logger.Info("Channel mapping read from DB", "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s (run %d)", query, runNumber)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error querying database: %w", err)
		return nil, errMessage
	}
	defer rows.Close()

	entries := make([]ChannelMappingEntry, 0)
	for rows.Next() {
		result := ChannelMappingEntry{}
		err := rows.StructScan(&result)
		if err != nil {
			errMessage := fmt.Errorf("error scanning DB row: %w", err)
			return nil, errMessage
		}
		entries = append(entries, result)
	}
	return entries, rows.Err()
}

func getCalibrationsFromDB(db *sqlx.DB, runNumber int) ([]CalibrationEntry, error) {
	query := "SELECT Source, Crate, Slot, Channel, EnergyOffset, EnergyGain, EnergyQuad, TimeOffset " +
		"FROM Calibration WHERE MinRun <= ? and MaxRun >= ?"

	if configuration.Verbosity > 0 {
		logger.Info("Calibrations read from DB", "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s (run %d)", query, runNumber)
		logger.Info(message, "database")
	}

	entries := make([]CalibrationEntry, 0)
	err := db.Select(&entries, query, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	return entries, nil
}
