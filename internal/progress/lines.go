package progress

import "fmt"

// Counter is an n/total pair passed into line formatters by the caller that
// owns the count.
type Counter struct {
	N     int
	Total int
}

func (c Counter) String() string { return fmt.Sprintf("%d/%d", c.N, c.Total) }

func Downloading(c Counter, filename string) string {
	return fmt.Sprintf("Downloading %s: %s", c, filename)
}

func DownloadFailed(url string, status int) string {
	return fmt.Sprintf("Failed to download %s: HTTP %d", url, status)
}

func DownloadError(url string, err error) string {
	return fmt.Sprintf("Error downloading %s: %v", url, err)
}

func Framing(c Counter, result string) string {
	return fmt.Sprintf("Framing %s: %s", c, result)
}

func AddedToZip(name string) string {
	return "Added to ZIP: " + name
}

func ZipCreated(path string) string {
	return "ZIP file created: " + path
}
