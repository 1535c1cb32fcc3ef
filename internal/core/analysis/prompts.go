package analysis

// DefaultColumnPrompt takes: column name, sample values, completeness
// percentage, distinct count, total rows.
const DefaultColumnPrompt = `Analyze this single CSV column to determine what information it contains.

Column Name: %s
Sample Values: %s
Completeness: %s%%
Unique Values: %d out of %d

Based on both the column name and the actual values, respond with the semantic type of the column and a one-sentence description of its content and format.`

// DefaultTableSummaryPrompt takes: total rows and a JSON summary of the columns.
const DefaultTableSummaryPrompt = `Analyze this CSV table's overall purpose based on its columns.

Total Rows: %d

Columns:
%s

Respond with a one-sentence description of what the table contains and the entity each row describes.`
