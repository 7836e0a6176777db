package version

// Current is the release version of the enricher, without a leading "v".
const Current = "0.1.0"
