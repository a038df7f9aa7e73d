package epub

import "github.com/pkg/errors"

var (
	// ErrCorruptArchive is returned when the input is not a readable zip
	// container. It is the only error that prevents producing a Document.
	ErrCorruptArchive = errors.New("epub: unreadable archive")

	// ErrNotFound is returned when an archive entry cannot be located by any
	// of the lookup strategies.
	ErrNotFound = errors.New("epub: file not found in archive")

	// ErrNoRootFile is returned when META-INF/container.xml is missing or
	// declares no rootfile.
	ErrNoRootFile = errors.New("epub: no rootfile in container.xml")

	// ErrPackageMissing is returned when the rootfile named by container.xml
	// is not present in the archive.
	ErrPackageMissing = errors.New("epub: package document not found")

	// ErrMalformedPackage is returned when the package document cannot be
	// decoded as XML.
	ErrMalformedPackage = errors.New("epub: malformed package document")

	// ErrChapterOutOfRange is returned for spine indices outside the spine.
	ErrChapterOutOfRange = errors.New("epub: chapter index out of range")
)

// IsPackageError reports whether err is a structural package problem that the
// fallback reader can recover from.
func IsPackageError(err error) bool {
	return errors.Is(err, ErrNoRootFile) ||
		errors.Is(err, ErrPackageMissing) ||
		errors.Is(err, ErrMalformedPackage)
}
