package common

// PageSize is the fixed transfer unit mandated by the backend: partial reads
// and part uploads both move whole pages of this size, except for the final
// page of a document.
const PageSize = 1 << 20
