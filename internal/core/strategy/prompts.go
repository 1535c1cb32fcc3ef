package strategy

// Both templates take, in order: purpose, target column information, source
// column analysis (JSON) and the list of helper functions.

const DefaultEntityColumnPrompt = `Create a transformation strategy that fills the target column from the source columns, if possible.

GENERAL PURPOSE OF DATA: %s

TARGET COLUMN INFORMATION:
%s

This column identifies the entity a row describes. Its value is compared for exact equality with existing rows, so the rule must normalize it completely (case, whitespace, punctuation, formatting).

AVAILABLE SOURCE COLUMNS:
%s

RULE LANGUAGE:
Rules are single expressions. Source columns are variables named after the column; columns whose names are not plain identifiers are read as row["column name"]. Strings use double quotes and are joined with +. Conditionals use cond ? a : b.
Built-in functions: lower, upper, trim, trimPrefix, trimSuffix, split, join, replace, hasPrefix, hasSuffix, len.
Helper functions: %s.

TRANSFORMATION TYPES:
1. "format" - deterministic rule that fully normalizes the value.
   Examples:
   - lower(trim(email))
   - lower(trim(first_name)) + " " + lower(trim(last_name))
   - truncate(digits(phone), 10)
2. "llm_format" - the rule builds an intermediate value which an LLM then turns into the final value. Use only when no deterministic rule can normalize it.
3. "none" - no suitable source column exists. Leave transformation_rule empty.

Respond with transformation_type, transformation_rule and a short reasoning.`

const DefaultDescriptiveColumnPrompt = `Create a transformation strategy for a target column that is merged with existing data.

GENERAL PURPOSE OF DATA: %s

TARGET COLUMN INFORMATION:
%s

AVAILABLE SOURCE COLUMNS:
%s

CURRENT VALUE:
The rule may use the variable current, which holds the value already stored in the target row (empty for new rows). Use it to combine old and new information instead of overwriting it.

RULE LANGUAGE:
Rules are single expressions. Source columns are variables named after the column; columns whose names are not plain identifiers are read as row["column name"]. Strings use double quotes and are joined with +. Conditionals use cond ? a : b.
Built-in functions: lower, upper, trim, trimPrefix, trimSuffix, split, join, replace, hasPrefix, hasSuffix, len.
Helper functions: %s.

TRANSFORMATION TYPES:
1. "format" - deterministic rule.
   Examples:
   - notes
   - merge_text(current, notes)
   - current == "" ? title(trim(company)) : current
   - join_nonempty("; ", current, "Phone: " + phone)
2. "llm_format" - the rule builds an intermediate value which an LLM then combines with the current value.
3. "none" - no suitable source column exists. Leave transformation_rule empty.

Respond with transformation_type, transformation_rule and a short reasoning.`
