package entity

// Record is one row as yielded by a data source: field name -> raw value.
// Values are whatever the source produced (strings, numbers, times, nil);
// the pipeline is responsible for turning them into CSV-safe text.
type Record map[string]any

// Row is one fully pipelined output row: output column name -> formatted text.
type Row map[string]string
