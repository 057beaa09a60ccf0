package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/figtool/pkg/config"
	"github.com/wizzomafizzo/figtool/pkg/database"
	"github.com/wizzomafizzo/figtool/pkg/figure"
	"github.com/wizzomafizzo/figtool/pkg/mifare"
	"github.com/wizzomafizzo/figtool/pkg/service"
	"github.com/wizzomafizzo/figtool/pkg/utils"
)

type Flags struct {
	Reader       *string
	Info         *bool
	Dump         *string
	Load         *string
	Decrypt      *bool
	Validate     *bool
	FixChecksums *bool
	Restore      *string
	Clone        *string
	SetUID       *string
	Format       *string
	Probe        *bool
	ExportCsv    *string
	Backups      *bool
	Find         *string
	Note         *string
	Version      *bool
}

// SetupFlags defines all CLI flags.
func SetupFlags() *Flags {
	return &Flags{
		Reader: flag.String(
			"reader",
			"",
			"reader connection string, e.g. pn532_uart:/dev/ttyUSB0",
		),
		Info: flag.Bool(
			"info",
			false,
			"print figure details",
		),
		Dump: flag.String(
			"dump",
			"",
			"save card image to file, or print it with -",
		),
		Load: flag.String(
			"load",
			"",
			"use a card image file instead of a reader",
		),
		Decrypt: flag.Bool(
			"decrypt",
			false,
			"decrypt save areas before dumping or exporting",
		),
		Validate: flag.Bool(
			"validate",
			false,
			"check all figure checksums",
		),
		FixChecksums: flag.Bool(
			"fix-checksums",
			false,
			"recalculate figure checksums and write them to the card",
		),
		Restore: flag.String(
			"restore",
			"",
			"restore save data from a card image file or backup id",
		),
		Clone: flag.String(
			"clone",
			"",
			"copy card image file onto a blank magic card",
		),
		SetUID: flag.String(
			"set-uid",
			"",
			"change the uid of a magic card",
		),
		Format: flag.String(
			"format",
			"",
			"turn a blank magic card into a figure, e.g. spyro or 0x1c2:0x3000",
		),
		Probe: flag.Bool(
			"probe",
			false,
			"check which sectors accept the default key",
		),
		ExportCsv: flag.String(
			"export-csv",
			"",
			"export card blocks to csv file",
		),
		Backups: flag.Bool(
			"backups",
			false,
			"list stored backups",
		),
		Find: flag.String(
			"find",
			"",
			"glob pattern to filter backups by note",
		),
		Note: flag.String(
			"note",
			"",
			"note to attach to backups made by this command",
		),
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
	}
}

// Pre runs flag parsing and actions any immediate flags that don't
// require environment setup. Add any custom flags before running this.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		fmt.Printf("figtool v%s\n", config.Version)
		os.Exit(0)
	}
}

// Setup initializes the user config and logging. Returns a user config object.
func Setup(defaultConfig *config.UserConfig) *config.UserConfig {
	cfg, err := config.NewUserConfig(defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	err = utils.InitLogging(cfg, config.MkTempDir())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

func exitErr(msg string, err error) {
	log.Error().Err(err).Msg(msg)
	_, _ = fmt.Fprintf(os.Stderr, "Error %s: %v\n", msg, err)
	os.Exit(1)
}

func (f *Flags) note(def string) string {
	if *f.Note != "" {
		return *f.Note
	}
	return def
}

// Post actions all remaining flags that require the environment to be set
// up. Logging is allowed.
func (f *Flags) Post(cfg *config.UserConfig) {
	if *f.Backups {
		f.listBackups(cfg)
		os.Exit(0)
	}

	if *f.Load != "" {
		card, err := mifare.LoadFile(*f.Load)
		if err != nil {
			exitErr("loading card image", err)
		}
		if err := f.inspect(figure.New(card, true)); err != nil {
			exitErr("reading card image", err)
		}
		os.Exit(0)
	}

	s, err := service.Start(cfg, *f.Reader, config.MkTempDir())
	if err != nil {
		exitErr("starting session", err)
	}

	err = f.run(s)
	if stopErr := s.Stop(); stopErr != nil {
		log.Error().Err(stopErr).Msg("error stopping session")
	}
	if err != nil {
		exitErr("running command", err)
	}

	os.Exit(0)
}

func (f *Flags) listBackups(cfg *config.UserConfig) {
	db, err := database.Open(cfg.GetDbPath())
	if err != nil {
		exitErr("opening backup database", err)
	}
	defer db.Close()

	var bs []database.Backup
	if *f.Find != "" {
		bs, err = db.FindBackups(*f.Find)
	} else {
		bs, err = db.ListBackups("")
	}
	if err != nil {
		exitErr("listing backups", err)
	}

	PrintBackups(os.Stdout, bs)
}

// inspect runs the read only commands against a figure in its encrypted
// state.
func (f *Flags) inspect(fig *figure.Figure) error {
	if *f.Info || *f.Validate || *f.Decrypt {
		if err := fig.Decrypt(); err != nil {
			return err
		}
	}

	if *f.Validate {
		if err := fig.ValidateChecksums(); err != nil {
			return err
		}
		fmt.Println("Checksums OK")
	}

	if *f.Info {
		if err := PrintInfo(os.Stdout, fig); err != nil {
			return err
		}
	}

	if *f.Dump == "-" {
		if err := fig.Card().Dump(os.Stdout); err != nil {
			return err
		}
	} else if *f.Dump != "" {
		if err := fig.Card().SaveFile(*f.Dump); err != nil {
			return err
		}
		log.Info().Msgf("saved card image to %s", *f.Dump)
	}

	if *f.ExportCsv != "" {
		return ExportCsv(*f.ExportCsv, fig.Card())
	}

	return nil
}

func (f *Flags) loadRestoreSource(s *service.Session) (*mifare.Card, error) {
	id, err := uuid.Parse(*f.Restore)
	if err != nil {
		return mifare.LoadFile(*f.Restore)
	}

	db, err := s.Database()
	if err != nil {
		return nil, err
	}
	b, err := db.GetBackup(id)
	if err != nil {
		return nil, err
	}
	return b.Card()
}

func (f *Flags) run(s *service.Session) error {
	t := s.Reader
	uid := s.Target.UID

	switch {
	case *f.Probe:
		_, open, err := mifare.Probe(t, uid)
		if err != nil {
			return err
		}
		PrintProbe(os.Stdout, open)
		return nil
	case *f.SetUID != "":
		newUID, err := mifare.ParseUID(*f.SetUID)
		if err != nil {
			return err
		}
		if err := SetUID(t, uid, newUID); err != nil {
			return err
		}
		fmt.Printf("Changed UID %s to %s\n", uid, newUID)
		return nil
	case *f.Clone != "":
		src, err := mifare.LoadFile(*f.Clone)
		if err != nil {
			return err
		}
		return Clone(t, uid, src)
	case *f.Format != "":
		char, typeCode, err := ParseCharacterArg(*f.Format)
		if err != nil {
			return err
		}
		fig, err := Format(t, uid, char, typeCode)
		if err != nil {
			return err
		}
		return PrintInfo(os.Stdout, fig)
	}

	fig, err := figure.Read(t, uid)
	if err != nil {
		return err
	}

	switch {
	case *f.Restore != "":
		src, err := f.loadRestoreSource(s)
		if err != nil {
			return err
		}
		if err := s.Backup(fig.Card(), f.note("before restore")); err != nil {
			return err
		}
		return Restore(t, fig, src)
	case *f.FixChecksums:
		if err := s.Backup(fig.Card(), f.note("before checksum fix")); err != nil {
			return err
		}
		fixed, err := FixChecksums(t, fig)
		if err != nil {
			return err
		} else if fixed {
			fmt.Println("Checksums fixed")
		} else {
			fmt.Println("Checksums OK")
		}
		return nil
	}

	return f.inspect(fig)
}
